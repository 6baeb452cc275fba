package trainer

import (
	"context"
	"fmt"
	"log/slog"

	"git.home.luguber.info/inful/progan/internal/logfields"
	"git.home.luguber.info/inful/progan/internal/schedule"
)

// progressLine renders the classic one-line training summary:
//
//	[E:0][T:12][   160/  1000]  errD: 0.5123 | errG: 0.9871 | [lr:0.00050][cur:3.500][resl:   8][gstab][0.0%][0.0%]
func progressLine(st schedule.State, epoch, stack, datasetLen int, lossD, lossG float64) string {
	return fmt.Sprintf("[E:%d][T:%d][%6d/%6d]  errD: %.4f | errG: %.4f | [lr:%.5f][cur:%.3f][resl:%4d][%s][%.1f%%][%.1f%%]",
		epoch, st.GlobalTick, stack, datasetLen, lossD, lossG,
		st.LR, st.Resolution, st.ImageSize(), st.Phase, st.Complete.Gen, st.Complete.Dis)
}

func (d *Driver) logProgress(ctx context.Context, st schedule.State) {
	d.logger.InfoContext(ctx, progressLine(st, d.epoch, d.stack, d.deps.Loader.Len(), d.lossD, d.lossG),
		slog.Int("epoch", d.epoch),
		logfields.Tick(st.GlobalTick),
		logfields.Iteration(st.GlobalIter),
		logfields.Resolution(st.Resolution),
		logfields.Phase(string(st.Phase)),
		logfields.GenComplete(st.Complete.Gen),
		logfields.DisComplete(st.Complete.Dis),
		logfields.LearningRate(st.LR),
		slog.Float64("loss_d", d.lossD),
		slog.Float64("loss_g", d.lossG))
}
