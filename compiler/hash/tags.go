package hash

// HashVersion is the first byte of every serialization. Bump when the
// encoding changes incompatibly; hashes are not comparable across versions.
const HashVersion byte = 0x01

// Serialization tags, one per canonical value shape.
const (
	TagNil    byte = 0x01
	TagBool   byte = 0x02
	TagInt    byte = 0x03
	TagFloat  byte = 0x04
	TagString byte = 0x05
	TagTuple  byte = 0x06
	TagRecord byte = 0x07
	TagBytes  byte = 0x08
)
