package transport

import (
	"context"
	"encoding/gob"
	"errors"
	"io"
	"os"
	"sync"
	"syscall"

	"github.com/jzx17/parmap/pkg/types"
)

// Pipes returns a factory for pairs backed by two OS pipes with gob framing,
// four file descriptors per pair. Payload types must be gob-encodable.
//
// Pipe receives block inside the kernel read, so they are woken by closing
// the pair rather than by context cancellation; the pool closes pairs on
// teardown for exactly this reason. Backpressure comes from the kernel pipe
// buffer plus the coordinator's own in-flight accounting.
func Pipes[T, R any]() Factory[T, R] {
	return func(worker int) (Pair[T, R], error) {
		workR, workW, err := os.Pipe()
		if err != nil {
			return nil, err
		}
		resR, resW, err := os.Pipe()
		if err != nil {
			workR.Close()
			workW.Close()
			return nil, err
		}
		return &pipePair[T, R]{
			workR: workR,
			workW: workW,
			resR:  resR,
			resW:  resW,

			workEnc: gob.NewEncoder(workW),
			workDec: gob.NewDecoder(workR),
			resEnc:  gob.NewEncoder(resW),
			resDec:  gob.NewDecoder(resR),
		}, nil
	}
}

// pipePair frames chunks over two pipes: workW -> workR carries input chunks,
// resW -> resR carries result chunks. Each writer is mutex-protected.
type pipePair[T, R any] struct {
	workR, workW *os.File
	resR, resW   *os.File

	workEnc *gob.Encoder
	workDec *gob.Decoder
	resEnc  *gob.Encoder
	resDec  *gob.Decoder

	workMu sync.Mutex // protects workEnc
	resMu  sync.Mutex // protects resEnc

	sendOnce    sync.Once
	resultsOnce sync.Once
	closeOnce   sync.Once
	closeErr    error
}

func (p *pipePair[T, R]) SendWork(ctx context.Context, chunk types.Chunk[T]) error {
	p.workMu.Lock()
	defer p.workMu.Unlock()
	return mapPipeErr(p.workEnc.Encode(chunk))
}

func (p *pipePair[T, R]) RecvWork(ctx context.Context) (types.Chunk[T], error) {
	var chunk types.Chunk[T]
	if err := p.workDec.Decode(&chunk); err != nil {
		return types.Chunk[T]{}, mapPipeErr(err)
	}
	return chunk, nil
}

func (p *pipePair[T, R]) SendResults(ctx context.Context, chunk types.ResultChunk[R]) error {
	p.resMu.Lock()
	defer p.resMu.Unlock()
	return mapPipeErr(p.resEnc.Encode(chunk))
}

func (p *pipePair[T, R]) RecvResults(ctx context.Context) (types.ResultChunk[R], error) {
	var chunk types.ResultChunk[R]
	if err := p.resDec.Decode(&chunk); err != nil {
		return types.ResultChunk[R]{}, mapPipeErr(err)
	}
	return chunk, nil
}

func (p *pipePair[T, R]) CloseSend() error {
	var err error
	p.sendOnce.Do(func() { err = p.workW.Close() })
	return err
}

func (p *pipePair[T, R]) CloseResults() error {
	var err error
	p.resultsOnce.Do(func() { err = p.resW.Close() })
	return err
}

func (p *pipePair[T, R]) Close() error {
	p.closeOnce.Do(func() {
		errs := []error{
			p.CloseSend(),
			p.CloseResults(),
			p.workR.Close(),
			p.resR.Close(),
		}
		p.closeErr = errors.Join(errs...)
	})
	return p.closeErr
}

// mapPipeErr folds the ways a closed pipe surfaces into ErrChannelClosed.
// Everything else is a genuine channel fault.
func mapPipeErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, os.ErrClosed) ||
		errors.Is(err, syscall.EPIPE) {
		return types.ErrChannelClosed
	}
	return err
}
