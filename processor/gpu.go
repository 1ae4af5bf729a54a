package processor

import (
	"encoding/binary"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu"

	_ "github.com/gogpu/wgpu/hal/allbackends"

	"github.com/framegrace/tsunami/buffer"
	"github.com/framegrace/tsunami/draworder"
	"github.com/framegrace/tsunami/media"
)

// colorRecordLen is the width, in ASCII bytes, of one RGBA color field
// ("RRGGBBAA"). The GPU kernels always emit all eight hex digits; unlike
// the CPU processor there is no shorthand path, since the dispatch is
// uniform across every pixel regardless of its alpha or greyscale value.
const colorRecordLen = 8

// reservedPrefixLen is how many command-buffer byte slots are reserved
// up front as a write sink for pixels that fall outside the canvas. The
// kernel still runs for every pixel in the source frame; out-of-canvas
// pixels get redirected here instead of being branched out of the
// dispatch, and the prefix is dropped from the buffer handed back to
// the caller.
const reservedPrefixLen = colorRecordLen

const gpuKernelWGSL = `
struct Params {
    count: u32,
}

@group(0) @binding(0) var<storage, read> colorWords: array<u32>;
@group(0) @binding(1) var<storage, read> colorIdx: array<u32>;
@group(0) @binding(2) var<storage, read> digitLookup: array<u32>;
@group(0) @binding(3) var<storage, read_write> commandBuffer: array<u32>;
@group(0) @binding(4) var<uniform> params: Params;

fn hexDigit(v: u32) -> u32 {
    return digitLookup[v & 0xFu];
}

fn writeColor(idx: u32, r: u32, g: u32, b: u32, a: u32) {
    let base = colorIdx[idx];
    commandBuffer[base + 0u] = hexDigit(r >> 4u);
    commandBuffer[base + 1u] = hexDigit(r);
    commandBuffer[base + 2u] = hexDigit(g >> 4u);
    commandBuffer[base + 3u] = hexDigit(g);
    commandBuffer[base + 4u] = hexDigit(b >> 4u);
    commandBuffer[base + 5u] = hexDigit(b);
    commandBuffer[base + 6u] = hexDigit(a >> 4u);
    commandBuffer[base + 7u] = hexDigit(a);
}

@compute @workgroup_size(64)
fn fillRGBA(@builtin(global_invocation_id) id: vec3<u32>) {
    let idx = id.x;
    if (idx >= params.count) {
        return;
    }
    let word = colorWords[idx];
    writeColor(idx, word & 0xFFu, (word >> 8u) & 0xFFu, (word >> 16u) & 0xFFu, (word >> 24u) & 0xFFu);
}

@compute @workgroup_size(64)
fn fillBGRA(@builtin(global_invocation_id) id: vec3<u32>) {
    let idx = id.x;
    if (idx >= params.count) {
        return;
    }
    let word = colorWords[idx];
    let b = word & 0xFFu;
    let g = (word >> 8u) & 0xFFu;
    let r = (word >> 16u) & 0xFFu;
    let a = (word >> 24u) & 0xFFu;
    writeColor(idx, r, g, b, a);
}
`

// GPU is the compute-shader frame processor. A frame's pixels, already
// packed one u32 per pixel by the decoder, are uploaded as-is; a
// precomputed per-pixel byte offset table steers each kernel invocation
// to the command-buffer slot its PX line's color field occupies. The
// command-buffer template (the "PX x y " text and trailing newlines) is
// built once, at construction, from the draw order; only the color
// digits are ever rewritten.
type GPU struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device

	pipelineRGBA *wgpu.ComputePipeline
	pipelineBGRA *wgpu.ComputePipeline
	bgLayout     *wgpu.BindGroupLayout

	frameW, frameH int
	pixelCount     uint32

	template    []byte // host copy, one ASCII byte per command-buffer slot
	templateBuf *wgpu.Buffer
	colorIdxBuf *wgpu.Buffer
	digitBuf    *wgpu.Buffer
	paramsBuf   *wgpu.Buffer
	colorBuf    *wgpu.Buffer
}

// GPUDeviceInfo is a single adapter's identity, as reported by the
// "gpus" subcommand.
type GPUDeviceInfo struct {
	Index int
	Name  string
	Type  string
}

// ListDevices reports the adapters the wgpu backend registry can see.
// The wrapper this is built on only exposes a single best-match
// RequestAdapter call rather than full enumeration, so this asks for
// the high-performance and low-power picks in turn and dedupes by
// name; multi-GPU machines may see fewer entries than they have cards.
func ListDevices() ([]GPUDeviceInfo, error) {
	instance, err := wgpu.CreateInstance(nil)
	if err != nil {
		return nil, fmt.Errorf("gpu: create instance: %w", err)
	}
	defer instance.Release()

	seen := map[string]bool{}
	var devices []GPUDeviceInfo
	for _, pref := range []gputypes.PowerPreference{wgpu.PowerPreferenceHighPerformance, wgpu.PowerPreferenceLowPower} {
		adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{PowerPreference: pref})
		if err != nil {
			continue
		}
		info := adapter.Info()
		adapter.Release()
		if seen[info.Name] {
			continue
		}
		seen[info.Name] = true
		devices = append(devices, GPUDeviceInfo{
			Index: len(devices),
			Name:  info.Name,
			Type:  fmt.Sprintf("%v", info.DeviceType),
		})
	}
	if len(devices) == 0 {
		return nil, fmt.Errorf("gpu: no adapters available")
	}
	return devices, nil
}

// NewGPU builds the GPU-resident template and dispatch tables for a
// size.X×size.Y frame placed at (offsetX, offsetY) on a canvasW×canvasH
// canvas, selecting deviceIndex from ListDevices' ordering.
func NewGPU(deviceIndex int, size draworder.Point, offsetX, offsetY, canvasW, canvasH uint16, strategy draworder.Strategy) (*GPU, error) {
	instance, err := wgpu.CreateInstance(nil)
	if err != nil {
		return nil, fmt.Errorf("gpu: create instance: %w", err)
	}

	pref := wgpu.PowerPreferenceHighPerformance
	if deviceIndex > 0 {
		pref = wgpu.PowerPreferenceLowPower
	}
	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{PowerPreference: pref})
	if err != nil {
		instance.Release()
		return nil, fmt.Errorf("gpu: request adapter: %w", err)
	}

	device, err := adapter.RequestDevice(&wgpu.DeviceDescriptor{Label: "tsunami-gpu-processor"})
	if err != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("gpu: request device: %w", err)
	}

	frameW, frameH := int(size.X), int(size.Y)
	pixelCount := frameW * frameH

	order := draworder.Generate(size.X, size.Y, strategy)

	template := make([]byte, reservedPrefixLen)
	colorIdx := make([]uint32, pixelCount)
	for _, pt := range order {
		xx, yy := pt.X+offsetX, pt.Y+offsetY
		pixelIdx := uint32(int(pt.Y)*frameW + int(pt.X))
		if xx >= canvasW || yy >= canvasH {
			colorIdx[pixelIdx] = 0
			continue
		}
		template = append(template, []byte(fmt.Sprintf("PX %d %d ", xx, yy))...)
		colorIdx[pixelIdx] = uint32(len(template))
		template = append(template, make([]byte, colorRecordLen)...)
		template = append(template, '\n')
	}

	g := &GPU{
		instance:   instance,
		adapter:    adapter,
		device:     device,
		frameW:     frameW,
		frameH:     frameH,
		pixelCount: uint32(pixelCount),
		template:   template,
	}

	if err := g.setup(colorIdx); err != nil {
		g.Close()
		return nil, err
	}
	return g, nil
}

func (g *GPU) setup(colorIdx []uint32) error {
	device := g.device

	templateWords := bytesToWords(g.template)
	templateBuf, err := device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "tsunami-template",
		Size:  uint64(len(templateWords) * 4),
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("gpu: create template buffer: %w", err)
	}
	g.templateBuf = templateBuf
	device.Queue().WriteBuffer(templateBuf, 0, u32sToBytes(templateWords))

	colorIdxBuf, err := device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "tsunami-color-idx",
		Size:  uint64(len(colorIdx) * 4),
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("gpu: create color-idx buffer: %w", err)
	}
	g.colorIdxBuf = colorIdxBuf
	device.Queue().WriteBuffer(colorIdxBuf, 0, u32sToBytes(colorIdx))

	digits := make([]uint32, 16)
	for i := range digits {
		digits[i] = uint32(digitLookup[i])
	}
	digitBuf, err := device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "tsunami-digit-lookup",
		Size:  uint64(len(digits) * 4),
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("gpu: create digit-lookup buffer: %w", err)
	}
	g.digitBuf = digitBuf
	device.Queue().WriteBuffer(digitBuf, 0, u32sToBytes(digits))

	paramsBuf, err := device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "tsunami-params",
		Size:  4,
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("gpu: create params buffer: %w", err)
	}
	g.paramsBuf = paramsBuf
	paramBytes := make([]byte, 4)
	binary.LittleEndian.PutUint32(paramBytes, g.pixelCount)
	device.Queue().WriteBuffer(paramsBuf, 0, paramBytes)

	colorBuf, err := device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "tsunami-color",
		Size:  uint64(g.pixelCount) * 4,
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("gpu: create color buffer: %w", err)
	}
	g.colorBuf = colorBuf

	shader, err := device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{Label: "tsunami-fill", WGSL: gpuKernelWGSL})
	if err != nil {
		return fmt.Errorf("gpu: create shader module: %w", err)
	}
	defer shader.Release()

	storageEntry := func(binding uint32) wgpu.BindGroupLayoutEntry {
		return wgpu.BindGroupLayoutEntry{
			Binding:    binding,
			Visibility: wgpu.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage},
		}
	}
	bgLayout, err := device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: "tsunami-bgl",
		Entries: []wgpu.BindGroupLayoutEntry{
			storageEntry(0),
			storageEntry(1),
			storageEntry(2),
			{
				Binding:    3,
				Visibility: wgpu.ShaderStageCompute,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage},
			},
			{
				Binding:    4,
				Visibility: wgpu.ShaderStageCompute,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("gpu: create bind group layout: %w", err)
	}
	g.bgLayout = bgLayout

	pipelineLayout, err := device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            "tsunami-pl",
		BindGroupLayouts: []*wgpu.BindGroupLayout{bgLayout},
	})
	if err != nil {
		return fmt.Errorf("gpu: create pipeline layout: %w", err)
	}
	defer pipelineLayout.Release()

	g.pipelineRGBA, err = device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label: "tsunami-fill-rgba", Layout: pipelineLayout, Module: shader, EntryPoint: "fillRGBA",
	})
	if err != nil {
		return fmt.Errorf("gpu: create rgba pipeline: %w", err)
	}
	g.pipelineBGRA, err = device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label: "tsunami-fill-bgra", Layout: pipelineLayout, Module: shader, EntryPoint: "fillBGRA",
	})
	if err != nil {
		return fmt.Errorf("gpu: create bgra pipeline: %w", err)
	}
	return nil
}

// Process uploads the frame's pixels, dispatches the matching channel
// kernel against a fresh copy of the command-buffer template, and reads
// the completed ASCII buffer back, stripping the reserved prefix.
func (g *GPU) Process(f media.Frame) (*buffer.Buffer, error) {
	if int(f.Width) != g.frameW || int(f.Height) != g.frameH {
		return nil, fmt.Errorf("gpu: frame size %dx%d does not match processor size %dx%d", f.Width, f.Height, g.frameW, g.frameH)
	}
	if len(g.template) == reservedPrefixLen {
		return buffer.New(nil), nil
	}

	device := g.device
	queue := device.Queue()

	queue.WriteBuffer(g.colorBuf, 0, pixelsToBytes(f.Pixels))

	workBuf, err := device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "tsunami-work",
		Size:  g.templateBuf.Size(),
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: create work buffer: %w", err)
	}
	defer workBuf.Release()

	stagingBuf, err := device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "tsunami-staging",
		Size:  g.templateBuf.Size(),
		Usage: wgpu.BufferUsageCopyDst | wgpu.BufferUsageMapRead,
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: create staging buffer: %w", err)
	}
	defer stagingBuf.Release()

	bindGroup, err := device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "tsunami-bg",
		Layout: g.bgLayout,
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: g.colorBuf, Size: g.colorBuf.Size()},
			{Binding: 1, Buffer: g.colorIdxBuf, Size: g.colorIdxBuf.Size()},
			{Binding: 2, Buffer: g.digitBuf, Size: g.digitBuf.Size()},
			{Binding: 3, Buffer: workBuf, Size: workBuf.Size()},
			{Binding: 4, Buffer: g.paramsBuf, Size: g.paramsBuf.Size()},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: create bind group: %w", err)
	}
	defer bindGroup.Release()

	encoder, err := device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, fmt.Errorf("gpu: create command encoder: %w", err)
	}

	encoder.CopyBufferToBuffer(g.templateBuf, 0, workBuf, 0, g.templateBuf.Size())

	pass, err := encoder.BeginComputePass(nil)
	if err != nil {
		return nil, fmt.Errorf("gpu: begin compute pass: %w", err)
	}
	pipeline := g.pipelineRGBA
	if f.Order == media.BGRA {
		pipeline = g.pipelineBGRA
	}
	pass.SetPipeline(pipeline)
	pass.SetBindGroup(0, bindGroup, nil)
	pass.Dispatch((g.pixelCount+63)/64, 1, 1)
	if err := pass.End(); err != nil {
		return nil, fmt.Errorf("gpu: end compute pass: %w", err)
	}

	encoder.CopyBufferToBuffer(workBuf, 0, stagingBuf, 0, workBuf.Size())

	cmdBuf, err := encoder.Finish()
	if err != nil {
		return nil, fmt.Errorf("gpu: finish encoder: %w", err)
	}
	if err := queue.Submit(cmdBuf); err != nil {
		return nil, fmt.Errorf("gpu: submit: %w", err)
	}

	words := make([]byte, stagingBuf.Size())
	if err := queue.ReadBuffer(stagingBuf, 0, words); err != nil {
		return nil, fmt.Errorf("gpu: read back command buffer: %w", err)
	}

	out := wordsToBytes(words)[reservedPrefixLen:]
	result := make([]byte, len(out))
	copy(result, out)
	return buffer.New(result), nil
}

// Close releases every GPU resource the processor holds. Safe to call
// once a processor is no longer needed; the processor must not be used
// afterward.
func (g *GPU) Close() {
	if g.pipelineRGBA != nil {
		g.pipelineRGBA.Release()
	}
	if g.pipelineBGRA != nil {
		g.pipelineBGRA.Release()
	}
	if g.bgLayout != nil {
		g.bgLayout.Release()
	}
	if g.templateBuf != nil {
		g.templateBuf.Release()
	}
	if g.colorIdxBuf != nil {
		g.colorIdxBuf.Release()
	}
	if g.digitBuf != nil {
		g.digitBuf.Release()
	}
	if g.paramsBuf != nil {
		g.paramsBuf.Release()
	}
	if g.colorBuf != nil {
		g.colorBuf.Release()
	}
	if g.device != nil {
		g.device.Release()
	}
	if g.adapter != nil {
		g.adapter.Release()
	}
	if g.instance != nil {
		g.instance.Release()
	}
}

func bytesToWords(b []byte) []uint32 {
	words := make([]uint32, len(b))
	for i, c := range b {
		words[i] = uint32(c)
	}
	return words
}

func wordsToBytes(raw []byte) []byte {
	n := len(raw) / 4
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		out[i] = byte(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return out
}

func u32sToBytes(words []uint32) []byte {
	out := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(out[i*4:], w)
	}
	return out
}

func pixelsToBytes(pixels []media.Pixel) []byte {
	out := make([]byte, len(pixels)*4)
	for i, p := range pixels {
		copy(out[i*4:], p[:])
	}
	return out
}
