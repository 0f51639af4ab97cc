// Package validation содержит функции валидации и нормализации входных данных.
package validation

import (
	"strconv"
	"strings"
	"unicode"
)

// DefaultLocalPart подставляется, если после нормализации от подсказки ничего не осталось.
const DefaultLocalPart = "user"

// NormalizeLocalPart приводит подсказку к нижнему регистру и оставляет только буквы и цифры.
func NormalizeLocalPart(hint string) string {
	var b strings.Builder
	for _, ch := range strings.ToLower(hint) {
		if unicode.IsLetter(ch) || unicode.IsDigit(ch) {
			b.WriteRune(ch)
		}
	}
	if b.Len() == 0 {
		return DefaultLocalPart
	}
	return b.String()
}

// HandleCandidate возвращает n-й вариант платёжного идентификатора: local@suffix, local1@suffix, ...
func HandleCandidate(local, suffix string, n int) string {
	if n == 0 {
		return local + "@" + suffix
	}
	return local + strconv.Itoa(n) + "@" + suffix
}

// IsValidHandle проверяет формат платёжного идентификатора local@suffix.
func IsValidHandle(handle string) bool {
	local, suffix, ok := strings.Cut(handle, "@")
	if !ok || local == "" || suffix == "" {
		return false
	}
	return !strings.ContainsAny(local+suffix, "@ \t\n")
}

// IsValidChainAddress проверяет адрес вида 0x и 40 шестнадцатеричных символов.
func IsValidChainAddress(address string) bool {
	if len(address) != 42 || !strings.HasPrefix(address, "0x") {
		return false
	}

	for _, ch := range address[2:] {
		isHex := (ch >= '0' && ch <= '9') || (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F')
		if !isHex {
			return false
		}
	}

	return true
}
