// File: cmd/tsunami/media.go
// Summary: The `media` subcommand: opens one or more media objects,
// builds a processor and buffer source for each, and hands the set to
// the connection engine.

package main

import (
	"fmt"
	"log"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/framegrace/tsunami/buffersource"
	"github.com/framegrace/tsunami/cache"
	"github.com/framegrace/tsunami/draworder"
	"github.com/framegrace/tsunami/engine"
	"github.com/framegrace/tsunami/handshake"
	"github.com/framegrace/tsunami/media"
	"github.com/framegrace/tsunami/processor"
)

// gpuMode selects whether media objects render on the CPU or GPU.
type gpuMode int

const (
	gpuNone gpuMode = iota
	gpuPreferred
	gpuRequired
)

func parseGPUMode(s string) (gpuMode, error) {
	switch s {
	case "", "none":
		return gpuNone, nil
	case "preferred":
		return gpuPreferred, nil
	case "required":
		return gpuRequired, nil
	default:
		return 0, fmt.Errorf("unknown --gpu-mode %q (want none, preferred, or required)", s)
	}
}

// cachingMode selects which cache layer, if any, wraps a media object's
// composite source.
type cachingMode int

const (
	cachingNone cachingMode = iota
	cachingKeepLast
	cachingComputeOnce
)

func parseCachingMode(s string) (cachingMode, error) {
	switch s {
	case "", "None":
		return cachingNone, nil
	case "KeepLast":
		return cachingKeepLast, nil
	case "KeepAllLazy":
		return cachingComputeOnce, nil
	default:
		return 0, fmt.Errorf("unknown --caching %q (want None, KeepLast, or KeepAllLazy)", s)
	}
}

// mediaObject is one parsed MEDIA_OBJECT: <path>[:x:y[:strategy]].
type mediaObject struct {
	path     string
	x, y     uint16
	strategy draworder.Strategy
}

func parseMediaObject(s string) (mediaObject, error) {
	parts := strings.Split(s, ":")
	obj := mediaObject{path: parts[0], strategy: draworder.Down}
	switch len(parts) {
	case 1:
		return obj, nil
	case 3, 4:
		x, err := strconv.ParseUint(parts[1], 10, 16)
		if err != nil {
			return obj, fmt.Errorf("media object %q: bad x offset: %w", s, err)
		}
		y, err := strconv.ParseUint(parts[2], 10, 16)
		if err != nil {
			return obj, fmt.Errorf("media object %q: bad y offset: %w", s, err)
		}
		obj.x, obj.y = uint16(x), uint16(y)
		if len(parts) == 4 {
			strat, err := draworder.ParseStrategy(parts[3])
			if err != nil {
				return obj, fmt.Errorf("media object %q: %w", s, err)
			}
			obj.strategy = strat
		}
		return obj, nil
	default:
		return obj, fmt.Errorf("media object %q must be <path>[:x:y[:strategy]]", s)
	}
}

// mediaArgs collects everything the media subcommand parsed out of its
// flags and positional arguments.
type mediaArgs struct {
	global  globalConfig
	objects []string
	gpuMode string
	gpuIdx  int
	caching string
}

func runMedia(args mediaArgs) error {
	if len(args.objects) == 0 {
		return fmt.Errorf("media requires at least one MEDIA_OBJECT")
	}
	cfg := args.global

	mode, err := parseGPUMode(args.gpuMode)
	if err != nil {
		return err
	}
	caching, err := parseCachingMode(args.caching)
	if err != nil {
		return err
	}

	targets, err := parseTargets(cfg.targetHosts)
	if err != nil {
		return err
	}
	ifaces, err := parseInterfaces(cfg.interfaces)
	if err != nil {
		return err
	}

	canvasW, canvasH, reusable, err := resolveCanvas(cfg.canvas, targets)
	if err != nil {
		return err
	}

	sources := make([]engine.BufferSource, 0, len(args.objects))
	for _, raw := range args.objects {
		obj, err := parseMediaObject(raw)
		if err != nil {
			return err
		}
		src, err := buildSource(obj, mode, args.gpuIdx, caching, canvasW, canvasH)
		if err != nil {
			return fmt.Errorf("media object %q: %w", raw, err)
		}
		sources = append(sources, src)
	}

	var reusableConns []engine.ReusableConn
	if reusable != nil {
		reusableConns = []engine.ReusableConn{*reusable}
	}

	eng, err := engine.New(engine.Config{
		Targets:               targets,
		Interfaces:            ifaces,
		Sources:               sources,
		ReusableConns:         reusableConns,
		ConnectionLimit:       cfg.maxConnections,
		ReconnectLimit:        cfg.reconnects,
		ReconnectBackoffLimit: cfg.reconnectBackoffLimit,
		TimeAnchor:            time.Now().Add(-cfg.timeOffset),
		Logger:                log.New(os.Stdout, "", log.LstdFlags),
		WarnLogger:            log.New(os.Stderr, "WARN: ", log.LstdFlags),
	})
	if err != nil {
		return err
	}
	defer eng.Close()

	if err := eng.Setup(1024); err != nil {
		return err
	}
	return eng.Run()
}

// buildSource opens obj's media file, wires a CPU or GPU processor
// against it depending on mode, wraps the result in the requested
// cache layer, and returns it as an engine.BufferSource.
func buildSource(obj mediaObject, mode gpuMode, gpuIndex int, caching cachingMode, canvasW, canvasH uint16) (engine.BufferSource, error) {
	anim, err := media.Open(obj.path)
	if err != nil {
		return nil, err
	}
	w, h := anim.Size()
	size := draworder.Point{X: w, Y: h}

	var proc processor.Processor
	switch mode {
	case gpuNone:
		proc = processor.NewCPU(size, obj.x, obj.y, canvasW, canvasH, obj.strategy)
	case gpuPreferred:
		gpu, err := processor.NewGPU(gpuIndex, size, obj.x, obj.y, canvasW, canvasH, obj.strategy)
		if err != nil {
			proc = processor.NewCPU(size, obj.x, obj.y, canvasW, canvasH, obj.strategy)
		} else {
			proc = gpu
		}
	case gpuRequired:
		gpu, err := processor.NewGPU(gpuIndex, size, obj.x, obj.y, canvasW, canvasH, obj.strategy)
		if err != nil {
			return nil, fmt.Errorf("GPU required but unavailable: %w", err)
		}
		proc = gpu
	}

	composite := buffersource.New(anim, proc)
	switch caching {
	case cachingKeepLast:
		return cache.NewKeepLast(composite, time.Now), nil
	case cachingComputeOnce:
		return cache.NewComputeOnce(composite), nil
	default:
		return composite, nil
	}
}

// resolveCanvas parses an explicit --canvas flag, or else performs a
// one-shot SIZE handshake against the first reachable target. On the
// handshake path, the socket the SIZE answer arrived on is handed back
// as a reusable connection so the engine can fold it straight into its
// connection pool instead of dialing a replacement from scratch.
func resolveCanvas(canvasFlag string, targets []*net.TCPAddr) (w, h uint16, reusable *engine.ReusableConn, err error) {
	if canvasFlag != "" {
		w, h, err := parseCanvas(canvasFlag)
		return w, h, nil, err
	}
	for _, t := range targets {
		conn, err := net.DialTimeout("tcp", t.String(), 5*time.Second)
		if err != nil {
			continue
		}
		w, h, err := handshake.Query(conn)
		if err != nil {
			conn.Close()
			continue
		}
		tcpConn, ok := conn.(*net.TCPConn)
		if !ok {
			conn.Close()
			return w, h, nil, nil
		}
		file, dupErr := tcpConn.File()
		conn.Close()
		if dupErr != nil {
			// The duplicated fd is what matters; fall back to dialing
			// fresh rather than failing the whole run over it.
			return w, h, nil, nil
		}
		return w, h, &engine.ReusableConn{File: file, Peer: t}, nil
	}
	return 0, 0, nil, fmt.Errorf("no canvas size obtainable: --canvas not given and no target answered SIZE")
}
