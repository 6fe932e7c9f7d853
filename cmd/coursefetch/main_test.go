package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRunArgs_PositionalAndFlags(t *testing.T) {
	cli, err := parseRunArgs([]string{
		"algo-001", "a@b.test", "pw",
		"--pdfs", "--subs", "--no-video",
		"--section-lecture-format=false",
		"--out", "dl", "--name-policy=restrictive",
		"--dry-run", "--continue-on-error",
	})
	require.NoError(t, err)
	require.Equal(t, "algo-001", cli.CourseID)
	require.Equal(t, "a@b.test", cli.Email)
	require.Equal(t, "pw", cli.Password)
	require.True(t, cli.PDFs)
	require.True(t, cli.Subs)
	require.False(t, cli.PPTX)
	require.True(t, cli.NoVideo)
	require.True(t, cli.QualifiedSet)
	require.False(t, cli.Qualified)
	require.Equal(t, "dl", cli.OutDir)
	require.Equal(t, "restrictive", cli.NamePolicy)
	require.True(t, cli.DryRun)
	require.True(t, cli.ContinueOnError)
	require.True(t, cli.ContinueOnErrorSet)
}

func TestParseRunArgs_OnlyCourseID(t *testing.T) {
	cli, err := parseRunArgs([]string{"algo-001"})
	require.NoError(t, err)
	require.Equal(t, "algo-001", cli.CourseID)
	require.Empty(t, cli.Email)
	require.Empty(t, cli.Password)
}

func TestParseRunArgs_Errors(t *testing.T) {
	cases := [][]string{
		{},
		{"a", "b", "c", "d"},
		{"algo-001", "--bogus"},
		{"algo-001", "--out"},
		{"algo-001", "--continue-on-error=maybe"},
	}
	for _, args := range cases {
		_, err := parseRunArgs(args)
		require.Error(t, err, "args=%q", args)
	}
}
