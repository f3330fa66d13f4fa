package queue

import (
    "context"
    "os"
    "path/filepath"
    "strings"
    "testing"
    "time"

    "github.com/samber/lo"
    "github.com/stretchr/testify/require"

    "github.com/iliyamo/chat-application/internal/model"
)

func TestNewMessageEventTargets(t *testing.T) {
    req := require.New(t)

    direct := NewMessageEvent(MessageCreated, model.Message{ID: 7, SenderID: 1, ToUserID: 2})
    req.Equal(MessageCreated, direct.Type)
    req.Equal(uint64(2), *direct.ToUserID)
    req.Nil(direct.ToGroupID)
    _, err := time.Parse(time.RFC3339, direct.OccurredAt)
    req.NoError(err)

    group := NewMessageEvent(MessageDeleted, model.Message{ID: 8, SenderID: 1, ToGroupID: 3})
    req.Nil(group.ToUserID)
    req.Equal(uint64(3), *group.ToGroupID)
}

func TestFormatEvent(t *testing.T) {
    line := formatEvent(MessageEvent{
        Type: MessageUpdated, MessageID: 5, SenderID: 9,
        ToGroupID: lo.ToPtr(uint64(4)), OccurredAt: "2024-01-02T03:04:05Z",
    })
    require.Equal(t, "[2024-01-02T03:04:05Z] message.updated | message_id=5 | sender_id=9 | group_id=4\n", line)
}

func TestHandleMessageAppends(t *testing.T) {
    req := require.New(t)
    dir := filepath.Join(t.TempDir(), "logs")

    req.NoError(handleMessage(dir, []byte(`{"type":"message.created","message_id":1,"sender_id":2,"to_user_id":3,"occurred_at":"t1"}`)))
    req.NoError(handleMessage(dir, []byte(`{"type":"message.deleted","message_id":1,"sender_id":2,"to_user_id":3,"occurred_at":"t2"}`)))

    data, err := os.ReadFile(filepath.Join(dir, EventLogFile))
    req.NoError(err)
    lines := strings.Split(strings.TrimSpace(string(data)), "\n")
    req.Len(lines, 2)
    req.Contains(lines[0], "message.created")
    req.Contains(lines[1], "to_user_id=3")
}

func TestHandleMessageRejectsBadPayload(t *testing.T) {
    dir := t.TempDir()
    require.Error(t, handleMessage(dir, []byte(`not json`)))
    require.Error(t, handleMessage(dir, []byte(`{"type":""}`)))
}

func TestSleepHonoursCancel(t *testing.T) {
    ctx, cancel := context.WithCancel(context.Background())
    cancel()
    require.False(t, sleep(ctx, time.Hour))
    require.True(t, sleep(context.Background(), time.Millisecond))
}
