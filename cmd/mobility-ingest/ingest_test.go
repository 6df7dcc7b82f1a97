package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIngestRequiresProviderArgument(t *testing.T) {
	require.Error(t, ingestCmd.Args(ingestCmd, nil))
	require.Error(t, ingestCmd.Args(ingestCmd, []string{}))
	require.NoError(t, ingestCmd.Args(ingestCmd, []string{"mobly"}))
	require.Error(t, ingestCmd.Args(ingestCmd, []string{"mobly", "extra"}))
}
