package compression_test

import (
	"context"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/hearth/internal/compression"
)

func TestDictionaryCodec(t *testing.T) {
	ctx := context.Background()
	codec := compression.NewDictionaryCodec()

	t.Run("should round trip", func(t *testing.T) {
		inputs := []string{
			"",
			"Can you explain photosynthesis?",
			"could you please explain, step by step, how caches work in order to save money",
			"Tell me about the following: a lot of things as well as a number of others.",
			"nothing to replace here",
			"ünïcödé text with émojis 🚀 and in order to",
		}

		for _, input := range inputs {
			encoded, err := codec.Encode(ctx, input)
			require.NoError(t, err)

			decoded, err := codec.Decode(ctx, encoded)
			require.NoError(t, err)
			require.Equal(t, input, decoded)
		}
	})

	t.Run("should shrink known phrases", func(t *testing.T) {
		input := "Can you explain photosynthesis in order to pass the exam?"

		encoded, err := codec.Encode(ctx, input)
		require.NoError(t, err)
		require.Less(t, utf8.RuneCountInString(encoded), utf8.RuneCountInString(input))
		require.Contains(t, encoded, "photosynthesis")
	})

	t.Run("should prefer longest phrase", func(t *testing.T) {
		encoded, err := codec.Encode(ctx, "can you please explain")
		require.NoError(t, err)
		require.Equal(t, 1, utf8.RuneCountInString(encoded))
	})

	t.Run("should refuse input with reserved runes", func(t *testing.T) {
		_, err := codec.Encode(ctx, "already \uE001 encoded")
		require.Error(t, err)
	})

	t.Run("should refuse unknown codes", func(t *testing.T) {
		_, err := codec.Decode(ctx, "bad \uF000 code")
		require.Error(t, err)
	})

	t.Run("should leave plain text unchanged on decode", func(t *testing.T) {
		decoded, err := codec.Decode(ctx, "plain text")
		require.NoError(t, err)
		require.Equal(t, "plain text", decoded)
	})
}

func TestService_WithDictionaryCodec(t *testing.T) {
	ctx := context.Background()
	service := compression.NewService(compression.NewDictionaryCodec(), true, time.Second)

	t.Run("should restore compressed text", func(t *testing.T) {
		result := service.Compress(ctx, "Please explain recursion as well as iteration")
		require.NotEqual(t, result.Original, result.Compressed)
		require.Equal(t, result.Original, service.Decompress(ctx, result.Compressed))
	})

	t.Run("should fall back when input holds reserved runes", func(t *testing.T) {
		input := "in order to \uE000"
		result := service.Compress(ctx, input)
		require.Equal(t, input, result.Compressed)
	})

	t.Run("should return input when decode refuses", func(t *testing.T) {
		require.Equal(t, "x \uF000", service.Decompress(ctx, "x \uF000"))
	})
}
