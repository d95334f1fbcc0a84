package linker

// RelaxKind records what the scanner decided for one relocation.
type RelaxKind uint8

const (
	RelaxNone RelaxKind = iota
	// mov foo@GOT(%reg), %reg -> lea foo@GOTOFF(%reg), %reg
	RelaxGot32x
	// TLS_GD and the call after it become a %gs-relative load. The second
	// relocation of the pair is marked RelaxPairSecond.
	RelaxTlsGdToLe
	RelaxTlsLdToLe
	// TLS_GOTDESC becomes lea, and its TLS_DESC_CALL a two-byte nop.
	RelaxTlsDescToLe
	RelaxPairSecond
)

func (k RelaxKind) String() string {
	switch k {
	case RelaxNone:
		return "none"
	case RelaxGot32x:
		return "got32x"
	case RelaxTlsGdToLe:
		return "tlsgd-to-le"
	case RelaxTlsLdToLe:
		return "tlsld-to-le"
	case RelaxTlsDescToLe:
		return "tlsdesc-to-le"
	case RelaxPairSecond:
		return "pair-second"
	}
	return "unknown"
}
