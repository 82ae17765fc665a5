package job

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/ragdrive/internal/model"
)

type Resyncer interface {
	Resync(ctx context.Context) (*model.IngestResult, error)
}

// ResyncJob re-ingests the active folder. It does nothing until a folder
// has been set.
type ResyncJob struct {
	svc Resyncer
}

func NewResyncJob(svc Resyncer) *ResyncJob {
	return &ResyncJob{svc: svc}
}

func (j *ResyncJob) Name() string {
	return "folder_resync"
}

func (j *ResyncJob) Run(ctx context.Context) error {
	res, err := j.svc.Resync(ctx)
	if err != nil {
		return err
	}
	if res == nil {
		logutil.GetLogger(ctx).Debug("resync skipped: no active folder")
		return nil
	}
	logutil.GetLogger(ctx).Info("folder resynced",
		zap.String("folder_id", res.FolderID), zap.Int("chunks", res.Chunks))
	return nil
}
