package syntax

import "github.com/erlscope/erlscope/internal/types"

// Lexer produces the full token stream for a source text, trivia included.
// It never fails: bytes that fit no token class become single-byte Illegal
// tokens, so every input (including binary garbage) tokenizes completely and
// losslessly.
type Lexer struct {
	src []byte
	pos int
}

// Tokenize lexes the entire input. The concatenation of the returned token
// texts is byte-identical to src.
func Tokenize(src []byte) []Token {
	lx := &Lexer{src: src}
	var tokens []Token
	for lx.pos < len(lx.src) {
		tokens = append(tokens, lx.next())
	}
	return tokens
}

func (lx *Lexer) next() Token {
	start := lx.pos
	c := lx.src[lx.pos]

	switch {
	case c == ' ' || c == '\t' || c == '\r' || c == '\n':
		for lx.pos < len(lx.src) && isSpace(lx.src[lx.pos]) {
			lx.pos++
		}
		return lx.emit(TokenWhitespace, start)

	case c == '%':
		for lx.pos < len(lx.src) && lx.src[lx.pos] != '\n' {
			lx.pos++
		}
		return lx.emit(TokenComment, start)

	case c >= 'a' && c <= 'z':
		for lx.pos < len(lx.src) && isNameByte(lx.src[lx.pos]) {
			lx.pos++
		}
		text := string(lx.src[start:lx.pos])
		if keywords[text] {
			return lx.emit(TokenKeyword, start)
		}
		return lx.emit(TokenAtom, start)

	case c == '\'':
		return lx.lexQuoted(start, '\'', TokenAtom)

	case (c >= 'A' && c <= 'Z') || c == '_':
		for lx.pos < len(lx.src) && isNameByte(lx.src[lx.pos]) {
			lx.pos++
		}
		return lx.emit(TokenVariable, start)

	case c >= '0' && c <= '9':
		return lx.lexNumber(start)

	case c == '"':
		return lx.lexQuoted(start, '"', TokenString)

	case c == '$':
		lx.pos++ // consume $
		if lx.pos < len(lx.src) {
			if lx.src[lx.pos] == '\\' {
				lx.pos++
				if lx.pos < len(lx.src) {
					lx.pos++
				}
			} else {
				lx.pos++
			}
		}
		return lx.emit(TokenChar, start)

	default:
		return lx.lexOperator(start)
	}
}

func (lx *Lexer) emit(kind TokenKind, start int) Token {
	return Token{
		Kind:  kind,
		Range: types.Range{Start: uint32(start), End: uint32(lx.pos)},
		Text:  string(lx.src[start:lx.pos]),
	}
}

// lexQuoted scans a quoted atom or string. An unterminated literal runs to
// end of input; the parser wraps the containing form in an error node.
func (lx *Lexer) lexQuoted(start int, quote byte, kind TokenKind) Token {
	lx.pos++ // opening quote
	for lx.pos < len(lx.src) {
		switch lx.src[lx.pos] {
		case '\\':
			lx.pos++
			if lx.pos < len(lx.src) {
				lx.pos++
			}
		case quote:
			lx.pos++
			return lx.emit(kind, start)
		default:
			lx.pos++
		}
	}
	return lx.emit(kind, start)
}

func (lx *Lexer) lexNumber(start int) Token {
	for lx.pos < len(lx.src) && isDigit(lx.src[lx.pos]) {
		lx.pos++
	}

	// base#digits form: 16#FF, 2#1010
	if lx.pos < len(lx.src) && lx.src[lx.pos] == '#' {
		p := lx.pos + 1
		for p < len(lx.src) && isBaseDigit(lx.src[p]) {
			p++
		}
		if p > lx.pos+1 {
			lx.pos = p
			return lx.emit(TokenInteger, start)
		}
	}

	// float: digits '.' digits [eE [+-] digits]
	if lx.pos+1 < len(lx.src) && lx.src[lx.pos] == '.' && isDigit(lx.src[lx.pos+1]) {
		lx.pos++
		for lx.pos < len(lx.src) && isDigit(lx.src[lx.pos]) {
			lx.pos++
		}
		if lx.pos < len(lx.src) && (lx.src[lx.pos] == 'e' || lx.src[lx.pos] == 'E') {
			p := lx.pos + 1
			if p < len(lx.src) && (lx.src[p] == '+' || lx.src[p] == '-') {
				p++
			}
			if p < len(lx.src) && isDigit(lx.src[p]) {
				lx.pos = p
				for lx.pos < len(lx.src) && isDigit(lx.src[lx.pos]) {
					lx.pos++
				}
			}
		}
		return lx.emit(TokenFloat, start)
	}

	return lx.emit(TokenInteger, start)
}

func (lx *Lexer) lexOperator(start int) Token {
	two := ""
	three := ""
	if lx.pos+2 <= len(lx.src) {
		two = string(lx.src[lx.pos : lx.pos+2])
	}
	if lx.pos+3 <= len(lx.src) {
		three = string(lx.src[lx.pos : lx.pos+3])
	}

	switch three {
	case "=:=":
		lx.pos += 3
		return lx.emit(TokenExactEq, start)
	case "=/=":
		lx.pos += 3
		return lx.emit(TokenExactNe, start)
	}

	switch two {
	case "->":
		lx.pos += 2
		return lx.emit(TokenArrow, start)
	case "<-":
		lx.pos += 2
		return lx.emit(TokenLArrow, start)
	case "<=":
		lx.pos += 2
		return lx.emit(TokenDArrow, start)
	case "<<":
		lx.pos += 2
		return lx.emit(TokenBinOpen, start)
	case ">>":
		lx.pos += 2
		return lx.emit(TokenBinClose, start)
	case "++":
		lx.pos += 2
		return lx.emit(TokenPlusPlus, start)
	case "--":
		lx.pos += 2
		return lx.emit(TokenMinusMinus, start)
	case "==":
		lx.pos += 2
		return lx.emit(TokenEq, start)
	case "/=":
		lx.pos += 2
		return lx.emit(TokenNotEq, start)
	case "=<":
		lx.pos += 2
		return lx.emit(TokenLtEq, start)
	case ">=":
		lx.pos += 2
		return lx.emit(TokenGtEq, start)
	case "=>":
		lx.pos += 2
		return lx.emit(TokenMapAssoc, start)
	case ":=":
		lx.pos += 2
		return lx.emit(TokenMapExact, start)
	case "::":
		lx.pos += 2
		return lx.emit(TokenDoubleColon, start)
	case "||":
		lx.pos += 2
		return lx.emit(TokenDoubleBar, start)
	}

	lx.pos++
	switch lx.src[start] {
	case '(':
		return lx.emit(TokenLParen, start)
	case ')':
		return lx.emit(TokenRParen, start)
	case '[':
		return lx.emit(TokenLBracket, start)
	case ']':
		return lx.emit(TokenRBracket, start)
	case '{':
		return lx.emit(TokenLBrace, start)
	case '}':
		return lx.emit(TokenRBrace, start)
	case ',':
		return lx.emit(TokenComma, start)
	case ';':
		return lx.emit(TokenSemi, start)
	case ':':
		return lx.emit(TokenColon, start)
	case '#':
		return lx.emit(TokenHash, start)
	case '?':
		return lx.emit(TokenQuestion, start)
	case '|':
		return lx.emit(TokenBar, start)
	case '=':
		return lx.emit(TokenMatch, start)
	case '!':
		return lx.emit(TokenSend, start)
	case '+':
		return lx.emit(TokenPlus, start)
	case '-':
		return lx.emit(TokenMinus, start)
	case '*':
		return lx.emit(TokenStar, start)
	case '/':
		return lx.emit(TokenSlash, start)
	case '<':
		return lx.emit(TokenLt, start)
	case '>':
		return lx.emit(TokenGt, start)
	case '.':
		// A dot followed by whitespace, a comment, or end of input
		// terminates a form. Any other dot is record-field access.
		if lx.pos >= len(lx.src) || isSpace(lx.src[lx.pos]) || lx.src[lx.pos] == '%' {
			return lx.emit(TokenDot, start)
		}
		return lx.emit(TokenPeriod, start)
	}
	return lx.emit(TokenIllegal, start)
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\r' || b == '\n'
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

func isBaseDigit(b byte) bool {
	return isDigit(b) || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')
}

func isNameByte(b byte) bool {
	return b == '_' || b == '@' || isDigit(b) ||
		(b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// AtomText returns the atom's name with quoting removed. For unquoted atoms
// this is the token text itself.
func AtomText(tok Token) string {
	if len(tok.Text) >= 2 && tok.Text[0] == '\'' && tok.Text[len(tok.Text)-1] == '\'' {
		return unescape(tok.Text[1 : len(tok.Text)-1])
	}
	return tok.Text
}

// StringText returns a string literal's content with quotes removed.
func StringText(tok Token) string {
	if len(tok.Text) >= 2 && tok.Text[0] == '"' && tok.Text[len(tok.Text)-1] == '"' {
		return unescape(tok.Text[1 : len(tok.Text)-1])
	}
	return tok.Text
}

func unescape(s string) string {
	if !containsByte(s, '\\') {
		return s
	}
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
			switch s[i] {
			case 'n':
				out = append(out, '\n')
			case 't':
				out = append(out, '\t')
			case 'r':
				out = append(out, '\r')
			default:
				out = append(out, s[i])
			}
			continue
		}
		out = append(out, s[i])
	}
	return string(out)
}

func containsByte(s string, b byte) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return true
		}
	}
	return false
}
