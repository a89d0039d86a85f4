package bookexport

// DecodeStream recovers a StreamEncrypted resource by XOR-ing ciphertext with
// the repeating key, then dropping a leading UTF-8 byte-order mark that the
// vendor inserts before encryption. The input slice is not modified.
//
// An empty key leaves the bytes unchanged apart from BOM stripping.
func DecodeStream(key, ciphertext []byte) []byte {
	return stripBOM(xorStream(key, ciphertext))
}

// xorStream applies the repeating-key XOR transform. It is its own inverse.
func xorStream(key, data []byte) []byte {
	out := make([]byte, len(data))
	if len(key) == 0 {
		copy(out, data)
		return out
	}
	for i, b := range data {
		out[i] = b ^ key[i%len(key)]
	}
	return out
}
