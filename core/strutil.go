package core

// utoa formats an unsigned integer without pulling in fmt,
// which is too large for the AVR flash budget
func utoa(n uint32) string {
	if n == 0 {
		return "0"
	}
	var buf [10]byte
	pos := len(buf)
	for n > 0 {
		pos--
		buf[pos] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[pos:])
}

// itoa formats a signed integer
func itoa(n int) string {
	if n < 0 {
		return "-" + utoa(uint32(-n))
	}
	return utoa(uint32(n))
}

// valueToString renders a dictionary constant
func valueToString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case int:
		return itoa(val)
	case uint8:
		return utoa(uint32(val))
	case uint32:
		return utoa(val)
	default:
		return ""
	}
}
