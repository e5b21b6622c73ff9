package recordings

import (
	"github.com/lemonhall/radioscribe/internal/model"
	"github.com/lemonhall/radioscribe/internal/workspace"
)

// ReadMeta loads and validates the session metadata document.
func ReadMeta(ws workspace.Workspace, ref SessionRef) (*model.RecordingMeta, error) {
	raw, err := ws.ReadFile(ref.MetaPath())
	if err != nil {
		return nil, err
	}
	return model.ParseRecordingMeta(raw)
}

// WriteMeta persists session metadata atomically, refreshing updatedAt.
func WriteMeta(ws workspace.Workspace, ref SessionRef, meta *model.RecordingMeta) error {
	meta.UpdatedAt = model.NowISO()
	data, err := model.MarshalPretty(meta)
	if err != nil {
		return err
	}
	return ws.WriteFileAtomic(ref.MetaPath(), data)
}
