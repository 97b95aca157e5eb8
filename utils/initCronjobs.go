package utils

import (
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// CronSnapshotter は schedule ごとに snapshot を実行するスケジューラを起動します。
// 呼び出し側は終了時に Stop() を呼ぶこと。
func CronSnapshotter(schedule string, snapshot func() error, logger *zap.Logger) (*cron.Cron, error) {
	c := cron.New()

	_, err := c.AddFunc(schedule, func() {
		if err := snapshot(); err != nil {
			logger.Error("定期スナップショットに失敗しました", zap.Error(err))
			return
		}
		logger.Debug("定期スナップショット完了")
	})
	if err != nil {
		return nil, err
	}

	c.Start()
	return c, nil
}
