package pgproto3

// Flush asks the backend to deliver any pending extended-protocol responses.
type Flush struct{}

// Frontend identifies this message as sendable by a PostgreSQL frontend.
func (*Flush) Frontend() {}

func (dst *Flush) Decode(src []byte) error {
	if len(src) != 0 {
		return &invalidMessageLenErr{messageType: "Flush", expectedLen: 0, actualLen: len(src)}
	}

	return nil
}

func (src *Flush) Encode(dst []byte) []byte {
	return append(dst, 'H', 0, 0, 0, 4)
}
