package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	cmds := rootCmd.Commands()

	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	expected := []string{"serve", "warm", "import", "migrate", "stats"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "landmatch", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestWarmCommand_Flags(t *testing.T) {
	for _, flagName := range []string{"area", "lat", "lon", "radius", "force"} {
		flag := warmCmd.Flags().Lookup(flagName)
		assert.NotNil(t, flag, "warm should have --%s flag", flagName)
	}

	radius := warmCmd.Flags().Lookup("radius")
	require.NotNil(t, radius)
	assert.Equal(t, "2000", radius.DefValue)
}

func TestImportCommand_Flags(t *testing.T) {
	flag := importCmd.Flags().Lookup("xlsx")
	require.NotNil(t, flag, "import command should have --xlsx flag")

	sheet := importCmd.Flags().Lookup("sheet")
	require.NotNil(t, sheet, "import command should have --sheet flag")
}
