package xnats_test

import (
	"os"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"
)

func TestCreateStream(t *testing.T) {
	if os.Getenv("TOKENBANK_TEST_NATS") == "" {
		t.Skip("needs a local nats server")
	}

	// Connect to NATS
	nc, err := nats.Connect(nats.DefaultURL)
	require.Nil(t, err)

	// Create JetStream Context
	js, err := nc.JetStream()
	require.Nil(t, err)

	// Create a Stream
	_, err = js.AddStream(&nats.StreamConfig{
		Name:     "TOKEN",
		Subjects: []string{"TOKEN.*"},
	})
	require.Nil(t, err)
}
