/*
Package cipher decodes the obfuscated parts of YouTube stream URLs.

Streams that are not directly playable carry a signatureCipher with an
encrypted "s" value, and most URLs carry an "n" parameter that the server
throttles unless it is transformed. Both transforms live in the player.js
script referenced by the watch page.

# Decoding

A Program is built from one player.js body. Signatures are decoded by
parsing the helper object of reverse, splice and swap operations and
applying them in Go. When the operation list cannot be parsed, the
decipher function and its helper object are extracted and evaluated with
otto. The n transform is always evaluated with otto.

	dec := cipher.NewDecoder(client.New())
	sig, err := dec.Decipher(ctx, playerJSURL, encrypted)

Decoder caches the parsed Program per player.js URL for PlayerJSTTL.

# Errors

Failures are reported as *Error values carrying one of the ErrCode
constants. Every *Error matches errs.ErrCipherFailed with errors.Is.
*/
package cipher
