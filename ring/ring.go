// Package ring is a minimal io_uring wrapper: just enough submission
// and completion queue plumbing for the connection engine's three
// opcodes (connect, write, timeout-linked-to-connect). It is not a
// general-purpose io_uring binding.
package ring

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Opcodes this package submits. Values match the kernel's io_uring_op
// enum (include/uapi/linux/io_uring.h); only the handful tsunami needs
// are named.
const (
	opNop     = 0
	opWrite   = 23 // IORING_OP_WRITE
	opTimeout = 11 // IORING_OP_TIMEOUT
	opConnect = 16 // IORING_OP_CONNECT
)

// ioSqeIOLink chains a submission queue entry to the next one: the next
// entry only executes once this one's completion is observed. Used to
// make a reconnect's `connect` fire only after its backoff `timeout`
// expires.
const ioSqeIOLink uint8 = 1 << 2

// ioSqeIOHardlink is IOSQE_IO_LINK without severing the chain when this
// entry completes with an error. An expired timeout completes with
// -ETIME, so a backoff timeout is hard-linked to keep its connect alive.
const ioSqeIOHardlink uint8 = 1 << 3

// mmap offsets for the three regions io_uring_setup describes, fixed by
// the kernel ABI.
const (
	offSQRing = 0x00000000
	offCQRing = 0x08000000
	offSQEs   = 0x10000000
)

var (
	ErrQueueFull  = errors.New("ring: submission queue is full")
	ErrRingClosed = errors.New("ring: operation attempted on a closed ring")
)

// sqe mirrors struct io_uring_sqe (64 bytes) from the kernel ABI.
type sqe struct {
	opcode      uint8
	flags       uint8
	ioprio      uint16
	fd          int32
	off         uint64
	addr        uint64
	length      uint32
	opcodeFlags uint32
	userData    uint64
	bufIndex    uint16
	personality uint16
	spliceFdIn  int32
	pad         [2]uint64
}

// cqe mirrors struct io_uring_cqe (16 bytes).
type cqe struct {
	userData uint64
	res      int32
	flags    uint32
}

// kernelTimespec mirrors struct __kernel_timespec, the ABI layout
// IORING_OP_TIMEOUT reads its addr argument as.
type kernelTimespec struct {
	sec  int64
	nsec int64
}

// Ring owns one io_uring instance: the submission and completion
// queues, their backing mmap regions, and the raw array of
// pre-allocated sqe slots the submission ring indexes into.
type Ring struct {
	fd int

	sqMmap []byte
	cqMmap []byte
	sqes   []byte // mmap'd IORING_OFF_SQES region, sqe-sized slots

	sqHead        *uint32
	sqTail        *uint32
	sqMask        uint32
	sqArray       []uint32
	sqEntries     uint32
	sqPendingTail uint32 // local tail, flushed to sqTail on Submit

	cqHead      *uint32
	cqTail      *uint32
	cqMask      uint32
	cqes        []cqe
	closed      bool
	pinned      []*timeoutPayload // outstanding PushTimeout kernelTimespecs
	pinnedAddrs [][]byte          // outstanding PushConnect sockaddr buffers
}

// timeoutPayload keeps a kernelTimespec alive (the kernel reads addr
// asynchronously) for as long as its timeout operation is outstanding.
type timeoutPayload struct {
	ts kernelTimespec
}

// Setup creates an io_uring instance with the given submission-queue
// depth and maps its rings into process memory.
func Setup(entries uint32) (*Ring, error) {
	var params unix.IoUringParams
	fd, err := unix.IoUringSetup(entries, &params)
	if err != nil {
		return nil, fmt.Errorf("ring: io_uring_setup: %w", err)
	}

	sqRingSize := int(params.SqOff.Array) + int(params.SqEntries)*4
	cqRingSize := int(params.CqOff.Cqes) + int(params.CqEntries)*16
	sqesSize := int(params.SqEntries) * int(unsafe.Sizeof(sqe{}))

	sqMmap, err := unix.Mmap(fd, offSQRing, sqRingSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("ring: mmap sq ring: %w", err)
	}
	cqMmap, err := unix.Mmap(fd, offCQRing, cqRingSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
	if err != nil {
		unix.Munmap(sqMmap)
		unix.Close(fd)
		return nil, fmt.Errorf("ring: mmap cq ring: %w", err)
	}
	sqes, err := unix.Mmap(fd, offSQEs, sqesSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
	if err != nil {
		unix.Munmap(sqMmap)
		unix.Munmap(cqMmap)
		unix.Close(fd)
		return nil, fmt.Errorf("ring: mmap sqes: %w", err)
	}

	r := &Ring{
		fd:        fd,
		sqMmap:    sqMmap,
		cqMmap:    cqMmap,
		sqes:      sqes,
		sqHead:    (*uint32)(unsafe.Pointer(&sqMmap[params.SqOff.Head])),
		sqTail:    (*uint32)(unsafe.Pointer(&sqMmap[params.SqOff.Tail])),
		sqMask:    *(*uint32)(unsafe.Pointer(&sqMmap[params.SqOff.RingMask])),
		sqEntries: params.SqEntries,
		cqHead:    (*uint32)(unsafe.Pointer(&cqMmap[params.CqOff.Head])),
		cqTail:    (*uint32)(unsafe.Pointer(&cqMmap[params.CqOff.Tail])),
		cqMask:    *(*uint32)(unsafe.Pointer(&cqMmap[params.CqOff.RingMask])),
	}
	r.sqPendingTail = atomic.LoadUint32(r.sqTail)

	sqArrayPtr := unsafe.Pointer(&sqMmap[params.SqOff.Array])
	r.sqArray = unsafe.Slice((*uint32)(sqArrayPtr), params.SqEntries)

	cqesPtr := unsafe.Pointer(&cqMmap[params.CqOff.Cqes])
	r.cqes = unsafe.Slice((*cqe)(cqesPtr), params.CqEntries)

	return r, nil
}

// Close tears down the ring's mmap regions and file descriptor.
func (r *Ring) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	unix.Munmap(r.sqes)
	unix.Munmap(r.cqMmap)
	unix.Munmap(r.sqMmap)
	return unix.Close(r.fd)
}

// nextSQE claims the next free submission slot, or reports ErrQueueFull
// if the ring has no room before the kernel next drains it.
func (r *Ring) nextSQE() (*sqe, uint32, error) {
	if r.closed {
		return nil, 0, ErrRingClosed
	}
	head := atomic.LoadUint32(r.sqHead)
	if r.sqPendingTail-head >= r.sqEntries {
		return nil, 0, ErrQueueFull
	}
	index := r.sqPendingTail & r.sqMask
	s := (*sqe)(unsafe.Pointer(&r.sqes[uintptr(index)*unsafe.Sizeof(sqe{})]))
	*s = sqe{}
	return s, index, nil
}

// enqueue publishes a claimed slot into the submission array so the
// next Submit call picks it up, in FIFO order.
func (r *Ring) enqueue(index uint32) {
	r.sqArray[r.sqPendingTail&r.sqMask] = index
	r.sqPendingTail++
}

// PushWrite submits a write(2) of data[offset:] against fd, tagged with
// userData so the matching completion can be correlated back to a
// connection record.
func (r *Ring) PushWrite(fd int, data []byte, offset int, userData uint64) error {
	s, index, err := r.nextSQE()
	if err != nil {
		return err
	}
	s.opcode = opWrite
	s.fd = int32(fd)
	s.addr = uint64(uintptr(unsafe.Pointer(&data[offset])))
	s.length = uint32(len(data) - offset)
	s.userData = userData
	r.enqueue(index)
	return nil
}

// PushConnect submits a connect(2) against fd toward addr. If linked is
// true, the entry is flagged IOSQE_IO_LINK so the submission that
// follows it in the same Submit batch only executes after this connect
// completes successfully. The Backoff→Reconnecting chain links the
// preceding PushTimeout instead, not the connect.
func (r *Ring) PushConnect(fd int, addr net.Addr, userData uint64, linked bool) error {
	s, index, err := r.nextSQE()
	if err != nil {
		return err
	}
	sockaddr, length, err := sockaddrBytes(addr)
	if err != nil {
		return fmt.Errorf("ring: encode connect address: %w", err)
	}
	// The kernel reads sockaddr asynchronously, same as a timeout's
	// kernelTimespec; pin it so the GC can't reclaim it first.
	r.pinnedAddrs = append(r.pinnedAddrs, sockaddr)

	s.opcode = opConnect
	s.fd = int32(fd)
	s.addr = uint64(uintptr(unsafe.Pointer(&sockaddr[0])))
	s.off = uint64(length)
	s.userData = userData
	if linked {
		s.flags |= ioSqeIOLink
	}
	r.enqueue(index)
	return nil
}

// PushTimeout submits a relative timeout of d. When linked is true the
// entry carries IOSQE_IO_HARDLINK so the submission that follows it in
// the same Submit batch only executes after this timeout completes,
// whatever its result (an expired timeout reports -ETIME).
func (r *Ring) PushTimeout(d time.Duration, userData uint64, linked bool) error {
	s, index, err := r.nextSQE()
	if err != nil {
		return err
	}
	payload := &timeoutPayload{ts: kernelTimespec{
		sec:  int64(d / time.Second),
		nsec: int64(d % time.Second),
	}}
	r.pinned = append(r.pinned, payload)

	s.opcode = opTimeout
	s.addr = uint64(uintptr(unsafe.Pointer(&payload.ts)))
	s.length = 1
	s.userData = userData
	if linked {
		s.flags |= ioSqeIOHardlink
	}
	r.enqueue(index)
	return nil
}

// Submit publishes every queued entry to the kernel and waits for at
// least minComplete completions.
func (r *Ring) Submit(minComplete uint32) (int, error) {
	toSubmit := r.sqPendingTail - atomic.LoadUint32(r.sqTail)
	atomic.StoreUint32(r.sqTail, r.sqPendingTail)

	n, err := unix.IoUringEnter(r.fd, toSubmit, minComplete, unix.IORING_ENTER_GETEVENTS, nil)
	if err != nil {
		return 0, fmt.Errorf("ring: io_uring_enter: %w", err)
	}
	return n, nil
}

// WaitCQE blocks (via Submit's IORING_ENTER_GETEVENTS) until at least
// one completion is available, then pops and returns it.
func (r *Ring) WaitCQE() (userData uint64, result int32, err error) {
	for {
		head := atomic.LoadUint32(r.cqHead)
		tail := atomic.LoadUint32(r.cqTail)
		if head != tail {
			c := r.cqes[head&r.cqMask]
			atomic.StoreUint32(r.cqHead, head+1)
			return c.userData, c.res, nil
		}
		if _, err := r.Submit(1); err != nil {
			return 0, 0, err
		}
	}
}

// sockaddrBytes encodes addr as a raw sockaddr_in/sockaddr_in6 byte
// buffer for the connect opcode's addr field, which the kernel reads
// the same way the connect(2) syscall does.
func sockaddrBytes(addr net.Addr) ([]byte, int, error) {
	tcpAddr, ok := addr.(*net.TCPAddr)
	if !ok {
		return nil, 0, fmt.Errorf("ring: unsupported address type %T", addr)
	}
	if ip4 := tcpAddr.IP.To4(); ip4 != nil {
		buf := make([]byte, 16)
		binary.LittleEndian.PutUint16(buf[0:], unix.AF_INET)
		binary.BigEndian.PutUint16(buf[2:], uint16(tcpAddr.Port))
		copy(buf[4:8], ip4)
		return buf, len(buf), nil
	}
	ip6 := tcpAddr.IP.To16()
	if ip6 == nil {
		return nil, 0, fmt.Errorf("ring: address %v is neither IPv4 nor IPv6", tcpAddr)
	}
	buf := make([]byte, 28)
	binary.LittleEndian.PutUint16(buf[0:], unix.AF_INET6)
	binary.BigEndian.PutUint16(buf[2:], uint16(tcpAddr.Port))
	copy(buf[8:24], ip6)
	return buf, len(buf), nil
}
