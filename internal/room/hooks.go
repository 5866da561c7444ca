package room

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/whostune/server/internal/cache"
	"github.com/whostune/server/internal/database"
	"github.com/whostune/server/internal/quiz"
)

// logRoomEvent ships a lifecycle event to the Redis event queue when one is
// connected. Failures are logged and never surface to gameplay.
func logRoomEvent(code, eventType string, payload map[string]interface{}) {
	if cache.Rdb == nil {
		return
	}
	record := cache.RoomEventRecord{
		RoomCode:  code,
		EventType: eventType,
		Payload:   payload,
		Timestamp: time.Now().Unix(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := cache.PublishRoomEvent(ctx, record); err != nil {
			log.Warnf("room %s: failed to publish %s event: %v", code, eventType, err)
		}
	}()
}

// archiveResult persists the final rankings when a database is connected.
// Like event logging it is best-effort and asynchronous.
func archiveResult(code string, rankings []quiz.RankingEntry) {
	if !database.Connected() {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := database.SaveGameResult(ctx, code, rankings); err != nil {
			log.Warnf("room %s: failed to archive game result: %v", code, err)
		}
	}()
}
