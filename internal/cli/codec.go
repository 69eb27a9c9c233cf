package cli

import (
	"fmt"

	"github.com/roach88/lifeline/internal/codec"
	"github.com/roach88/lifeline/internal/config"
)

// newCodec builds the encoder and decoder described by cfg. A passphrase
// turns on sealing for both.
func newCodec(cfg config.CodecConfig, o *RootOptions) (*codec.Encoder, *codec.Decoder, error) {
	level, err := codec.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}
	var sealer *codec.Sealer
	if cfg.Passphrase != "" {
		if sealer, err = codec.NewSealer(cfg.Passphrase); err != nil {
			return nil, nil, fmt.Errorf("codec passphrase: %w", err)
		}
	}
	enc := codec.NewEncoder(codec.EncoderOptions{Level: level, MaxBytes: cfg.MaxBytes, Sealer: sealer})
	dec := codec.NewDecoder(codec.DecoderOptions{Clock: o.Clock, Sealer: sealer})
	return enc, dec, nil
}
