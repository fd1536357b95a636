package cmd

import (
	"testing"

	"github.com/spf13/cobra"
)

func TestStoreAndGetAppContext(t *testing.T) {
	original := globalAppContext
	defer func() {
		globalAppContext = original
	}()

	cmd := &cobra.Command{Use: "root"}
	appCtx := &AppContext{DataDir: "/tmp/siteqa"}

	storeAppContext(cmd, appCtx)

	got := getAppContext(cmd)
	if got != appCtx {
		t.Fatalf("expected stored app context to be returned")
	}
}

func TestGetAppContextFallback(t *testing.T) {
	original := globalAppContext
	defer func() {
		globalAppContext = original
	}()
	globalAppContext = nil

	got := getAppContext(&cobra.Command{Use: "root"})
	if got.Config != cliConfig || got.Logger == nil {
		t.Fatalf("expected fallback context with config and logger, got %+v", got)
	}
}

func TestSubcommandsRegistered(t *testing.T) {
	for _, name := range []string{"run", "serve", "version"} {
		found := false
		for _, c := range rootCmd.Commands() {
			if c.Name() == name {
				found = true
			}
		}
		if !found {
			t.Errorf("expected %s subcommand to be registered", name)
		}
	}
}
