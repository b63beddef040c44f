package sheet

// ColumnToNumber converts column letters to 1-based column number, i.e. "A" is 1, "Z" is 26 and "AA" is 27.
// Letters are expected to be upper case A..Z.
func ColumnToNumber(name string) int {
	num := 0
	for _, c := range name {
		num = num*26 + int(c-'A'+1)
	}
	return num
}

// NumberToColumn converts 1-based column number to column letters, the reverse of ColumnToNumber.
// Returns empty string for non-positive numbers.
func NumberToColumn(num int) string {
	var res []byte
	for num > 0 {
		modulo := (num - 1) % 26
		res = append([]byte{byte('A' + modulo)}, res...)
		num = (num - modulo) / 26
	}
	return string(res)
}
