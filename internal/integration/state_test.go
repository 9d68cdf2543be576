package integration

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestStateCodecRoundTrip(t *testing.T) {
	codec := NewStateCodec("test-secret", 10*time.Minute)

	state := codec.Encode("acc-123")
	got, err := codec.Decode(state)
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if got != "acc-123" {
		t.Errorf("accountID = %s, want acc-123", got)
	}
}

func TestStateCodecAccountIDWithDots(t *testing.T) {
	codec := NewStateCodec("test-secret", 10*time.Minute)

	state := codec.Encode("org.team.user")
	got, err := codec.Decode(state)
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if got != "org.team.user" {
		t.Errorf("accountID = %s, want org.team.user", got)
	}
}

func TestStateCodecTampered(t *testing.T) {
	codec := NewStateCodec("test-secret", 10*time.Minute)

	state := codec.Encode("acc-123")

	// accountIDの差し替え
	tampered := strings.Replace(state, "acc-123", "acc-999", 1)
	if _, err := codec.Decode(tampered); !errors.Is(err, ErrInvalidState) {
		t.Errorf("改ざんされたstateはErrInvalidStateを期待: got %v", err)
	}

	// 署名の破壊
	broken := state[:len(state)-1] + "0"
	if broken == state {
		broken = state[:len(state)-1] + "1"
	}
	if _, err := codec.Decode(broken); !errors.Is(err, ErrInvalidState) {
		t.Errorf("署名破壊はErrInvalidStateを期待: got %v", err)
	}
}

func TestStateCodecWrongSecret(t *testing.T) {
	state := NewStateCodec("secret-a", 10*time.Minute).Encode("acc-123")

	if _, err := NewStateCodec("secret-b", 10*time.Minute).Decode(state); !errors.Is(err, ErrInvalidState) {
		t.Errorf("別のシークレットはErrInvalidStateを期待: got %v", err)
	}
}

func TestStateCodecExpired(t *testing.T) {
	codec := NewStateCodec("test-secret", -1*time.Minute)

	state := codec.Encode("acc-123")
	if _, err := codec.Decode(state); !errors.Is(err, ErrInvalidState) {
		t.Errorf("期限切れstateはErrInvalidStateを期待: got %v", err)
	}
}

func TestStateCodecMalformed(t *testing.T) {
	codec := NewStateCodec("test-secret", 10*time.Minute)

	for _, state := range []string{"", "no-dots", "a.b", "..."} {
		if _, err := codec.Decode(state); !errors.Is(err, ErrInvalidState) {
			t.Errorf("Decode(%q)はErrInvalidStateを期待: got %v", state, err)
		}
	}
}
