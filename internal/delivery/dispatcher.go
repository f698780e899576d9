package delivery

import (
	"context"
	"fmt"

	"github.com/botcrew/botcrew/internal/workerclient"
)

// WorkerDispatcher executes delivery jobs by posting them to the
// target agent's worker container. Both job kinds land on the worker's
// evaluate endpoint; a DM is an evaluation on the reply channel with
// the DM flag set.
type WorkerDispatcher struct {
	workers *workerclient.Client
}

// NewWorkerDispatcher creates a dispatcher backed by the worker client.
func NewWorkerDispatcher(workers *workerclient.Client) *WorkerDispatcher {
	return &WorkerDispatcher{workers: workers}
}

// Dispatch executes a single job.
func (d *WorkerDispatcher) Dispatch(ctx context.Context, job *Job) error {
	switch job.Kind {
	case KindDirectMessage:
		if job.DM == nil {
			return fmt.Errorf("dm job for agent %s has no message payload", job.AgentID)
		}
		return d.workers.Evaluate(ctx, job.AgentID, workerclient.EvaluateRequest{
			ChannelID:            job.DM.ReplyChannelID,
			MessageContent:       job.DM.Content,
			MessageID:            job.DM.MessageID,
			SenderUserIdentifier: job.DM.SenderID,
			IsDM:                 true,
		})
	case KindEvaluation:
		if job.Evaluation == nil {
			return fmt.Errorf("evaluation job for agent %s has no payload", job.AgentID)
		}
		return d.workers.Evaluate(ctx, job.AgentID, workerclient.EvaluateRequest{
			ChannelID:            job.Evaluation.ChannelID,
			MessageContent:       job.Evaluation.MessageContent,
			MessageID:            job.Evaluation.MessageID,
			SenderUserIdentifier: job.Evaluation.SenderUserIdentifier,
			IsDM:                 job.Evaluation.IsDM,
		})
	default:
		return fmt.Errorf("unknown delivery job kind %q", job.Kind)
	}
}
