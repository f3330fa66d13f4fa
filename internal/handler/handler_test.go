package handler

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/chat-application/internal/model"
)

func TestSafeNext(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", "/chat/"},
		{"/chat/?room=2", "/chat/?room=2"},
		{"/profile", "/profile"},
		{"//evil.example/x", "/chat/"},
		{"https://evil.example", "/chat/"},
		{`/\evil.example`, "/chat/"},
		{"relative/path", "/chat/"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, safeNext(tt.in), tt.in)
	}
}

func TestFlexIDUnmarshal(t *testing.T) {
	type body struct {
		ToUser *flexID `json:"to_user"`
	}
	tests := []struct {
		raw   string
		id    uint64
		valid bool
	}{
		{`{"to_user": 7}`, 7, true},
		{`{"to_user": "12"}`, 12, true},
		{`{"to_user": null}`, 0, true},
		{`{"to_user": ""}`, 0, true},
		{`{"to_user": "abc"}`, 0, false},
		{`{"to_user": -1}`, 0, false},
		{`{"to_user": 1.5}`, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			var b body
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &b))
			req := createMessageReq{ToUser: b.ToUser}
			got := req.toUser()
			require.Equal(t, tt.valid, got.Valid)
			require.Equal(t, tt.id, got.ID)
		})
	}

	// An absent field counts as unset.
	require.Equal(t, flexID{Valid: true}, createMessageReq{}.toGroup())
}

func TestMemberIDListUnmarshal(t *testing.T) {
	req := require.New(t)
	var body createGroupReq
	req.NoError(json.Unmarshal([]byte(`{"name":"g","member_ids":[3,"4"]}`), &body))
	req.Equal(memberIDList{3, 4}, body.MemberIDs)

	err := json.Unmarshal([]byte(`{"member_ids":["x"]}`), &body)
	req.ErrorIs(err, errMemberIDs)
	req.Equal(map[string]string{"member_ids": msgMemberIDs}, bindFieldError(err))

	err = json.Unmarshal([]byte(`{"name":5}`), &body)
	req.Error(err)
	req.Equal(map[string]string{"name": msgNotString}, bindFieldError(err))

	req.Nil(bindFieldError(errors.New("other")))
}

func TestParseFormID(t *testing.T) {
	require.Equal(t, flexID{ID: 3, Valid: true}, parseFormID(" 3 "))
	require.Equal(t, flexID{Valid: true}, parseFormID(""))
	require.Equal(t, flexID{Valid: true}, parseFormID("null"))
	require.False(t, parseFormID("x").Valid)
}

func TestExportRow(t *testing.T) {
	req := require.New(t)
	at := time.Date(2024, 3, 1, 23, 30, 0, 0, time.UTC)
	paris, err := time.LoadLocation("Europe/Paris")
	req.NoError(err)

	direct := model.Message{
		Sender: model.User{Email: "a@example.com"}, ToUserID: 2, ToUserEmail: "b@example.com",
		Text: "hi", Reaction: "👍", CreatedAt: at,
	}
	req.Equal([]string{"a@example.com", "b@example.com", "hi", "2024-03-01 23:30", "👍"}, exportRow(direct, time.UTC))
	req.Equal("2024-03-02 00:30", exportRow(direct, paris)[3])

	group := model.Message{Sender: model.User{Email: "a@example.com"}, ToGroupID: 4, ToGroupName: "Team", CreatedAt: at}
	req.Equal("Group:Team", exportRow(group, time.UTC)[1])
	req.Equal("", exportRow(group, time.UTC)[4])

	// Quotes are left to the csv writer.
	quoted := model.Message{Sender: model.User{Email: "a@example.com"}, ToUserID: 2, ToUserEmail: "b@example.com", Text: `say "hi"`, CreatedAt: at}
	req.Equal(`say "hi"`, exportRow(quoted, time.UTC)[2])
}

func TestIsPlainText(t *testing.T) {
	p := bluemonday.StrictPolicy()
	require.True(t, isPlainText(p, "Team Rocket"))
	require.True(t, isPlainText(p, "Tom & Jerry"))
	require.False(t, isPlainText(p, "<script>alert(1)</script>"))
	require.False(t, isPlainText(p, "<b>bold</b>"))
}

func TestValidationMessages(t *testing.T) {
	req := require.New(t)
	v := NewValidator()

	err := v.Validate(&createGroupReq{Name: ""})
	req.Equal(map[string]string{"name": "This field is required."}, validationMessages(err))

	err = v.Validate(&signupReq{Email: "not-an-email", Password: "pw", Name: "n"})
	req.Equal(map[string]string{"email": "Enter a valid email address."}, validationMessages(err))

	req.Nil(validationMessages(errors.New("other")))
	req.NoError(v.Validate(&createGroupReq{Name: "ok"}))
}

func TestDefaultName(t *testing.T) {
	require.Equal(t, "a@example.com", defaultName("a@example.com"))
	long := strings.Repeat("é", 200) + "@example.com"
	got := defaultName(long)
	require.Equal(t, maxNameLen, utf8.RuneCountInString(got))
	require.True(t, strings.HasPrefix(long, got))
}

func TestFirstError(t *testing.T) {
	require.Equal(t, msgInvalidInput, firstError(nil))
	require.Equal(t, "email: bad", firstError(map[string]string{"name": "x", "email": "bad"}))
}
