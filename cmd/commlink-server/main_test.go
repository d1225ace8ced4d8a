package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/mikepea/commlink/pkg/commlink/auth"
)

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("JWT_SECRET", "cli-secret")

	out, err := runCmd(t, "token", "--user-id", "7", "--role", "Admin")
	if err != nil {
		t.Fatalf("token command failed: %v", err)
	}

	claims, err := auth.ValidateToken([]byte("cli-secret"), strings.TrimSpace(out))
	if err != nil {
		t.Fatalf("Issued token does not validate: %v", err)
	}
	if claims.UserID != 7 || claims.Role != "Admin" {
		t.Errorf("Unexpected claims %+v", claims)
	}
}

func TestTokenCommandDefaultsToDefaultUser(t *testing.T) {
	t.Setenv("JWT_SECRET", "cli-secret")
	t.Setenv("DEFAULT_USER_ID", "3")

	out, err := runCmd(t, "token")
	if err != nil {
		t.Fatalf("token command failed: %v", err)
	}
	claims, err := auth.ValidateToken([]byte("cli-secret"), strings.TrimSpace(out))
	if err != nil {
		t.Fatalf("Issued token does not validate: %v", err)
	}
	if claims.UserID != 3 {
		t.Errorf("Expected user 3, got %d", claims.UserID)
	}
}

func TestTokenCommandRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	if _, err := runCmd(t, "token"); err == nil {
		t.Error("Expected error without JWT_SECRET")
	}
}
