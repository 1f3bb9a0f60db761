package engine

import (
	"context"
	"time"
)

// RunModifiedFeed периодически снимает отметки изменённых чанков и публикует
// ChunksModified, чтобы подписчики шины не опрашивали REST. Разосланные чанки
// остаются доступны через DrainModified до следующего вызова.
// Блокирует до отмены ctx. Неположительный interval отключает рассылку.
func (e *Engine) RunModifiedFeed(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		e.logger.Info("🧱 Рассылка изменённых чанков отключена")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info("🧱 Рассылка изменённых чанков каждые %s", interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if chunks := e.feedModified(ctx); len(chunks) > 0 {
				e.logger.Trace("выдано %d изменённых чанков", len(chunks))
			}
		}
	}
}
