// Package configwire implements the 32-bit key-value wire codec of spec
// §3.4 and the decode/encode algorithm of §4.B: the base64, checksummed,
// verification-string-framed byte stream exchanged by the configuration
// protocol's get-config action, and the cluster-configuration value it
// carries.
//
// Decoding walks the flat key-value stream once, grouping entries by
// section id, then resolves the structural section-ref keys (1000, 2000,
// 3000 in section 0) to recover the layout the original discovers over two
// passes; a single growable-map walk takes the place of the original's
// discover-then-allocate-then-assign sequence.
package configwire
