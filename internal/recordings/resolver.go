package recordings

import (
	"strings"

	"github.com/lemonhall/radioscribe/internal/errors"
	"github.com/lemonhall/radioscribe/internal/model"
	"github.com/lemonhall/radioscribe/internal/workspace"
)

// Resolver finds recording sessions across the known roots.
type Resolver interface {
	// Resolve locates sessionID by probing the roots in lookup order.
	Resolve(sessionID string) (SessionRef, error)
	// ResolveDir opens a session by explicit directory, reading the
	// session id from its metadata.
	ResolveDir(dir string) (SessionRef, error)
	// Sessions lists every session ref across all roots.
	Sessions() ([]SessionRef, error)
}

type resolver struct {
	ws workspace.Workspace
}

// NewResolver creates a session resolver over the workspace.
func NewResolver(ws workspace.Workspace) Resolver {
	return &resolver{ws: ws}
}

func (r *resolver) Resolve(sessionID string) (SessionRef, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return SessionRef{}, errors.New(errors.CodeInvalidArgs, "missing sessionId")
	}
	for _, root := range RootsInLookupOrder() {
		ref := SessionRef{RootDir: root, SessionID: sessionID}
		if r.ws.Exists(ref.MetaPath()) {
			return ref, nil
		}
	}
	return SessionRef{}, errors.Newf(errors.CodeSessionNotFound, "session not found: %s", sessionID)
}

func (r *resolver) ResolveDir(dir string) (SessionRef, error) {
	dir = strings.Trim(strings.TrimSpace(dir), "/")
	if dir == "" {
		return SessionRef{}, errors.New(errors.CodeInvalidArgs, "missing session dir")
	}
	slash := strings.LastIndex(dir, "/")
	if slash < 0 {
		return SessionRef{}, errors.Newf(errors.CodeInvalidArgs, "session dir must be <root>/<sessionId>: %s", dir)
	}
	ref := SessionRef{RootDir: dir[:slash], SessionID: dir[slash+1:]}
	raw, err := r.ws.ReadFile(ref.MetaPath())
	if err != nil {
		return SessionRef{}, errors.Newf(errors.CodeSessionNotFound, "no session metadata in %s", dir)
	}
	if _, err := model.ParseRecordingMeta(raw); err != nil {
		return SessionRef{}, err
	}
	return ref, nil
}

func (r *resolver) Sessions() ([]SessionRef, error) {
	var refs []SessionRef
	for _, root := range RootsInLookupOrder() {
		entries, err := r.ws.ListDir(root)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if !e.Dir {
				continue
			}
			ref := SessionRef{RootDir: root, SessionID: e.Name}
			if r.ws.Exists(ref.MetaPath()) {
				refs = append(refs, ref)
			}
		}
	}
	return refs, nil
}
