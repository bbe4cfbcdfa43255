package engine

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/rs/zerolog"

	"github.com/franksops/gridq/account"
	"github.com/franksops/gridq/provider"
	"github.com/franksops/gridq/store"
)

// Request is the intent of one record, as handed to a Mover.
type Request struct {
	RecordID   string
	Kind       store.Kind
	LocalPath  string
	RemotePath string
	TargetPath string
	Resource   string
	Account    account.Account
}

// RequestFor builds the Request for rec.
func RequestFor(rec *store.Record) Request {
	return Request{
		RecordID:   rec.ID,
		Kind:       rec.Kind,
		LocalPath:  rec.LocalPath,
		RemotePath: rec.RemotePath,
		TargetPath: rec.TargetPath,
		Resource:   rec.Resource,
		Account:    rec.Account,
	}
}

// Mover performs the data movement of a request. It emits exactly one event
// per attempted item, skips every item at or before cb.RestartPath(), and
// stops between items once cb is cancelled. A zero-length file source is
// written without a success event, so its record keeps no checkpoint. A
// non-nil error means the record could not be carried through.
type Mover interface {
	Execute(ctx context.Context, req Request, cb *ControlBlock, sink EventSink) error
}

// ProviderMover moves data between the local filesystem and remote resources.
type ProviderMover struct {
	local    provider.Provider
	sessions provider.Sessions
	buffers  *BufferPool
	verify   bool
	log      zerolog.Logger
}

// MoverOption configures a ProviderMover.
type MoverOption func(*ProviderMover)

// WithBufferSize sets the per-item copy buffer size.
func WithBufferSize(size int) MoverOption {
	return func(m *ProviderMover) { m.buffers = NewBufferPool(size) }
}

// WithChecksum reads every written item back and compares its CRC64 with the source.
func WithChecksum(verify bool) MoverOption {
	return func(m *ProviderMover) { m.verify = verify }
}

// WithMoverLogger sets the logger.
func WithMoverLogger(l zerolog.Logger) MoverOption {
	return func(m *ProviderMover) { m.log = l }
}

// NewProviderMover creates a mover reading and writing local data through
// local and opening remote resources through sessions.
func NewProviderMover(local provider.Provider, sessions provider.Sessions, opts ...MoverOption) *ProviderMover {
	m := &ProviderMover{
		local:    local,
		sessions: sessions,
		buffers:  NewBufferPool(DefaultBufferSize),
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// route is the source and destination of a request.
type route struct {
	src, dst         provider.Provider
	srcRoot, dstRoot string
	// nest places a collection source under dstRoot by its base name.
	nest bool
}

func (m *ProviderMover) route(ctx context.Context, req Request) (route, error) {
	acct := req.Account
	switch req.Kind {
	case store.KindPut:
		dst, err := m.sessions.Open(ctx, acct, req.Resource)
		if err != nil {
			return route{}, err
		}
		return route{src: m.local, dst: dst, srcRoot: req.LocalPath, dstRoot: req.RemotePath, nest: true}, nil

	case store.KindGet:
		src, err := m.sessions.Open(ctx, acct, req.Resource)
		if err != nil {
			return route{}, err
		}
		return route{src: src, dst: m.local, srcRoot: req.RemotePath, dstRoot: req.LocalPath, nest: true}, nil

	case store.KindReplicate:
		src, err := m.sessions.Open(ctx, acct, "")
		if err != nil {
			return route{}, err
		}
		dst, err := m.sessions.Open(ctx, acct, req.Resource)
		if err != nil {
			return route{}, err
		}
		return route{src: src, dst: dst, srcRoot: req.RemotePath, dstRoot: req.RemotePath}, nil

	case store.KindCopy:
		src, err := m.sessions.Open(ctx, acct, "")
		if err != nil {
			return route{}, err
		}
		dst, err := m.sessions.Open(ctx, acct, req.Resource)
		if err != nil {
			return route{}, err
		}
		return route{src: src, dst: dst, srcRoot: req.RemotePath, dstRoot: req.TargetPath, nest: true}, nil
	}
	return route{}, fmt.Errorf("unknown transfer kind %q", req.Kind)
}

// Execute implements Mover.
func (m *ProviderMover) Execute(ctx context.Context, req Request, cb *ControlBlock, sink EventSink) error {
	log := recordLogger(ctx, m.log, req.RecordID, req.Kind)

	rt, err := m.route(ctx, req)
	if err != nil {
		return fatal("open session", err)
	}

	items, rootInfo, err := NewWalker(rt.src).Walk(ctx, rt.srcRoot)
	if err != nil {
		if Classify(err) == Fatal {
			return err
		}
		return fatal("enumerate source", err)
	}

	targetBase := rt.dstRoot
	if rootInfo.IsDir() && rt.nest {
		targetBase = path.Join(rt.dstRoot, path.Base(rt.srcRoot))
	}

	cb.SetItemCount(len(items))
	if !rootInfo.IsDir() && rootInfo.Size() == 0 {
		return m.moveEmpty(ctx, rt, req, items[0], targetBase, sink)
	}

	start, found := resumeIndex(items, cb.RestartPath())
	if !found {
		cb.MarkCheckpointMissed()
		log.Warn().Str("checkpoint", cb.RestartPath()).Msg("checkpoint not in source listing, transferring everything")
	} else if start > 0 {
		log.Info().Int("skipped", start).Int("total", len(items)).Msg("resuming after checkpoint")
	}

	for i := start; i < len(items); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if cb.Cancelled() {
			return ErrCancelled
		}

		it := items[i]
		target := targetBase
		if it.Rel != "" {
			target = path.Join(targetBase, it.Rel)
		}

		n, err := m.moveItem(ctx, rt, it, target)
		ev := StatusEvent{
			Scope:            ScopeItem,
			State:            EventSuccess,
			SourcePath:       it.Path,
			TargetPath:       target,
			Resource:         req.Resource,
			BytesTransferred: n,
			TotalBytes:       it.Info.Size(),
			ItemIndex:        i + 1,
			ItemCount:        len(items),
			Time:             time.Now(),
		}
		if err != nil {
			if Classify(err) == Fatal {
				return err
			}
			ev.State = EventError
			ev.Err = &ItemError{SourcePath: it.Path, TargetPath: target, Err: err}
		}
		sink(ev)
	}
	return nil
}

// moveEmpty creates the empty target of a zero-length file source. Only a
// failure is reported as an item event.
func (m *ProviderMover) moveEmpty(ctx context.Context, rt route, req Request, it Item, target string, sink EventSink) error {
	if _, err := m.moveItem(ctx, rt, it, target); err != nil {
		if Classify(err) == Fatal {
			return err
		}
		sink(StatusEvent{
			Scope:      ScopeItem,
			State:      EventError,
			SourcePath: it.Path,
			TargetPath: target,
			Resource:   req.Resource,
			ItemIndex:  1,
			ItemCount:  1,
			Time:       time.Now(),
			Err:        &ItemError{SourcePath: it.Path, TargetPath: target, Err: err},
		})
	}
	return nil
}

func (m *ProviderMover) moveItem(ctx context.Context, rt route, it Item, target string) (int64, error) {
	r, err := rt.src.OpenRead(ctx, it.Path)
	if err != nil {
		return 0, err
	}
	defer r.Close()

	w, err := rt.dst.OpenWrite(ctx, target, it.Info)
	if err != nil {
		return 0, err
	}

	buf := m.buffers.Get()
	defer m.buffers.Put(buf)

	n, sum, err := copyStream(w, r, *buf)
	if err != nil {
		w.Close()
		return n, err
	}
	if err := w.Close(); err != nil {
		return n, err
	}

	if m.verify {
		back, err := rt.dst.OpenRead(ctx, target)
		if err != nil {
			return n, fmt.Errorf("failed to open target for verification: %w", err)
		}
		defer back.Close()
		if err := verifyWritten(back, sum, n, *buf); err != nil {
			return n, err
		}
	}
	return n, nil
}
