package syntax

import "github.com/erlscope/erlscope/internal/types"

// Parse builds a lossless syntax tree for src. It never fails: unparsable
// regions become error nodes and the parser resynchronizes at the next form
// terminator (a dot followed by whitespace). The same input always produces
// the same tree.
func Parse(src []byte) *Node {
	p := &parser{tokens: Tokenize(src), srcLen: uint32(len(src))}
	root := p.open(NodeSourceFile)
	for {
		p.bumpTrivia()
		if p.eof() {
			break
		}
		p.parseForm()
	}
	p.close()
	root.Range = types.Range{Start: 0, End: p.srcLen}
	return root
}

type parser struct {
	tokens []Token
	pos    int
	srcLen uint32
	stack  []*Node
}

func (p *parser) eof() bool {
	return p.pos >= len(p.tokens)
}

func (p *parser) cur() *Node {
	return p.stack[len(p.stack)-1]
}

func (p *parser) open(kind NodeKind) *Node {
	n := &Node{Kind: kind}
	if len(p.stack) > 0 {
		parent := p.cur()
		parent.Children = append(parent.Children, Child{Node: n})
	}
	p.stack = append(p.stack, n)
	return n
}

func (p *parser) close() *Node {
	n := p.cur()
	p.stack = p.stack[:len(p.stack)-1]
	first, last := boundaryTokens(n)
	if first != nil {
		n.Range = types.Range{Start: first.Range.Start, End: last.Range.End}
	} else {
		off := p.offset()
		n.Range = types.Range{Start: off, End: off}
	}
	return n
}

func boundaryTokens(n *Node) (*Token, *Token) {
	var first, last *Token
	for i := range n.Children {
		c := n.Children[i]
		var f, l *Token
		if c.Token != nil {
			f, l = c.Token, c.Token
		} else if c.Node != nil {
			f, l = boundaryTokens(c.Node)
		}
		if f == nil {
			continue
		}
		if first == nil {
			first = f
		}
		last = l
	}
	return first, last
}

func (p *parser) offset() uint32 {
	if p.eof() {
		return p.srcLen
	}
	return p.tokens[p.pos].Range.Start
}

// bumpTrivia moves whitespace and comments into the current node.
func (p *parser) bumpTrivia() {
	for !p.eof() && p.tokens[p.pos].IsTrivia() {
		tok := p.tokens[p.pos]
		n := p.cur()
		n.Children = append(n.Children, Child{Token: &tok})
		p.pos++
	}
}

// bump consumes pending trivia plus one significant token into the current node.
func (p *parser) bump() {
	p.bumpTrivia()
	if p.eof() {
		return
	}
	tok := p.tokens[p.pos]
	n := p.cur()
	n.Children = append(n.Children, Child{Token: &tok})
	p.pos++
}

// peekN returns the nth significant token ahead (0 = next), skipping trivia.
func (p *parser) peekN(n int) (Token, bool) {
	seen := 0
	for i := p.pos; i < len(p.tokens); i++ {
		if p.tokens[i].IsTrivia() {
			continue
		}
		if seen == n {
			return p.tokens[i], true
		}
		seen++
	}
	return Token{}, false
}

func (p *parser) peek() (Token, bool) {
	return p.peekN(0)
}

func (p *parser) at(kind TokenKind) bool {
	t, ok := p.peek()
	return ok && t.Kind == kind
}

func (p *parser) atKeyword(word string) bool {
	t, ok := p.peek()
	return ok && t.Kind == TokenKeyword && t.Text == word
}

// wrapInError reparents everything appended to n since child index from into
// a single error node. Used when a construct loses its expected structure
// after tokens were already consumed.
func (p *parser) wrapInError(n *Node, from int) {
	if from > len(n.Children) {
		from = len(n.Children)
	}
	errNode := &Node{Kind: NodeError, Children: append([]Child(nil), n.Children[from:]...)}
	first, last := boundaryTokens(errNode)
	if first != nil {
		errNode.Range = types.Range{Start: first.Range.Start, End: last.Range.End}
	} else {
		off := p.offset()
		errNode.Range = types.Range{Start: off, End: off}
	}
	n.Children = append(n.Children[:from], Child{Node: errNode})
}

// recoverForm consumes everything up to and including the next form
// terminator into an error node. This is the synchronization point that
// keeps one bad form from poisoning the rest of the file.
func (p *parser) recoverForm() {
	p.open(NodeError)
	for !p.eof() {
		if p.at(TokenDot) {
			p.bump()
			break
		}
		p.bump()
	}
	p.close()
}

func (p *parser) parseForm() {
	tok, _ := p.peek()
	switch {
	case tok.Kind == TokenMinus:
		p.parseAttribute()
	case tok.Kind == TokenAtom:
		p.parseFunction()
	default:
		p.recoverForm()
	}
}

func (p *parser) parseAttribute() {
	name := ""
	if t, ok := p.peekN(1); ok && (t.Kind == TokenAtom || t.Kind == TokenKeyword) {
		name = AtomText(t)
	}

	kind := NodeWildAttr
	switch name {
	case "module":
		kind = NodeModuleAttr
	case "export":
		kind = NodeExportAttr
	case "import":
		kind = NodeImportAttr
	case "include", "include_lib":
		kind = NodeIncludeAttr
	case "record":
		kind = NodeRecordDecl
	case "define":
		kind = NodeDefineAttr
	}

	n := p.open(kind)
	p.bump() // '-'
	p.bump() // attribute name

	switch kind {
	case NodeModuleAttr:
		p.parseModuleAttr(n)
	case NodeExportAttr, NodeImportAttr:
		p.parseExportAttr(n)
	case NodeIncludeAttr:
		p.parseIncludeAttr(n)
	case NodeRecordDecl, NodeDefineAttr, NodeWildAttr:
		p.consumeAttrTail()
	}
	p.close()
}

func (p *parser) parseModuleAttr(n *Node) {
	mark := len(n.Children)
	if !p.at(TokenLParen) {
		p.consumeAttrTailFrom(n, mark)
		return
	}
	p.bump() // (
	if !p.at(TokenAtom) {
		p.consumeAttrTailFrom(n, mark)
		return
	}
	p.bump() // module name
	if !p.at(TokenRParen) {
		p.consumeAttrTailFrom(n, mark)
		return
	}
	p.bump() // )
	if p.at(TokenDot) {
		p.bump()
	}
}

// parseExportAttr handles -export([f/1, g/2]). and the list portion of
// -import(mod, [f/1]). Each name/arity pair becomes a fun_ref node.
func (p *parser) parseExportAttr(n *Node) {
	mark := len(n.Children)
	if !p.at(TokenLParen) {
		p.consumeAttrTailFrom(n, mark)
		return
	}
	p.bump() // (

	// -import has a module atom and comma before the list
	if p.at(TokenAtom) {
		p.bump()
		if p.at(TokenComma) {
			p.bump()
		}
	}

	if !p.at(TokenLBracket) {
		p.consumeAttrTailFrom(n, mark)
		return
	}
	p.bump() // [

	for {
		if t, ok := p.peek(); ok && t.Kind == TokenAtom {
			if s, ok2 := p.peekN(1); ok2 && s.Kind == TokenSlash {
				if a, ok3 := p.peekN(2); ok3 && a.Kind == TokenInteger {
					p.open(NodeFunRef)
					p.bump() // name
					p.bump() // /
					p.bump() // arity
					p.close()
					if p.at(TokenComma) {
						p.bump()
						continue
					}
					break
				}
			}
		}
		break
	}

	if p.at(TokenRBracket) {
		p.bump()
	}
	if p.at(TokenRParen) {
		p.bump()
	}
	if p.at(TokenDot) {
		p.bump()
	} else {
		p.consumeAttrTailFrom(n, len(n.Children))
	}
}

func (p *parser) parseIncludeAttr(n *Node) {
	mark := len(n.Children)
	if !p.at(TokenLParen) {
		p.consumeAttrTailFrom(n, mark)
		return
	}
	p.bump() // (
	if !p.at(TokenString) {
		p.consumeAttrTailFrom(n, mark)
		return
	}
	p.bump() // "path"
	if p.at(TokenRParen) {
		p.bump()
	}
	if p.at(TokenDot) {
		p.bump()
	}
}

// consumeAttrTail flat-consumes an attribute's parenthesized tail up to the
// form terminator. Record and define bodies are extracted token-wise by the
// item tree, so no sub-structure is needed here.
func (p *parser) consumeAttrTail() {
	for !p.eof() {
		if p.at(TokenDot) {
			p.bump()
			return
		}
		p.bump()
	}
}

// consumeAttrTailFrom consumes to the form terminator and wraps everything
// after child index mark in an error node.
func (p *parser) consumeAttrTailFrom(n *Node, mark int) {
	for !p.eof() {
		if p.at(TokenDot) {
			p.bump()
			break
		}
		p.bump()
	}
	p.wrapInError(n, mark)
}

func (p *parser) parseFunction() {
	p.open(NodeFunction)
	for {
		p.parseClause()
		if p.at(TokenSemi) {
			p.bump()
			continue
		}
		if p.at(TokenDot) {
			p.bump()
		}
		break
	}
	p.close()
}

func (p *parser) parseClause() {
	n := p.open(NodeClause)
	defer p.close()

	if !p.at(TokenAtom) {
		p.recoverForm()
		return
	}
	p.bump() // clause name

	if !p.at(TokenLParen) {
		p.recoverForm()
		return
	}
	if !p.parseArgList() {
		return
	}

	if p.atKeyword("when") {
		p.open(NodeGuard)
		p.bump() // when
		p.scanExprUntil(func(t Token) bool { return t.Kind == TokenArrow })
		p.close()
	}

	if !p.at(TokenArrow) {
		mark := len(n.Children)
		for !p.eof() && !p.at(TokenDot) && !p.at(TokenSemi) {
			p.bump()
		}
		p.wrapInError(n, mark)
		return
	}
	p.bump() // ->

	p.open(NodeBody)
	p.scanExprUntil(func(t Token) bool {
		return t.Kind == TokenSemi || t.Kind == TokenDot
	})
	p.close()
}

// parseArgList consumes '(' ... ')' as an arg_list node. Returns false when
// input ends before the closing paren; the consumed tail is then wrapped in
// an error node so malformed input is still visible in the tree.
func (p *parser) parseArgList() bool {
	n := p.open(NodeArgList)
	defer p.close()

	p.bump() // (
	mark := len(n.Children)
	closed := p.scanExprUntil(func(t Token) bool { return t.Kind == TokenRParen })
	if !closed {
		p.wrapInError(n, mark)
		return false
	}
	p.bump() // )
	return true
}

// scanExprUntil consumes expression tokens into the current node until the
// stop predicate matches at nesting depth zero. Groups, blocks, calls, macro
// uses and record uses are consumed as sub-structures. Returns false if
// input ended before a stop token was seen.
func (p *parser) scanExprUntil(stop func(Token) bool) bool {
	for {
		p.bumpTrivia()
		if p.eof() {
			return false
		}
		tok, _ := p.peek()
		if stop(tok) {
			return true
		}

		switch tok.Kind {
		case TokenLParen:
			p.scanGroup(TokenRParen)
		case TokenLBracket:
			p.scanGroup(TokenRBracket)
		case TokenLBrace:
			p.scanGroup(TokenRBrace)
		case TokenBinOpen:
			p.scanGroup(TokenBinClose)

		case TokenKeyword:
			switch {
			case blockOpeners[tok.Text]:
				p.scanBlock()
			case tok.Text == "fun":
				p.scanFun()
			default:
				p.bump()
			}

		case TokenAtom:
			p.scanAtomExpr()

		case TokenVariable:
			if p.isRemoteCallAhead() {
				p.parseRemoteCall()
			} else {
				p.bump()
			}

		case TokenQuestion:
			p.scanMacroUse()

		case TokenHash:
			p.scanRecordUse()

		default:
			p.bump()
		}
	}
}

// scanGroup consumes a bracketed group including its closer. The group's
// tokens stay inline in the current node; only semantically interesting
// sub-structures (calls etc.) get their own nodes.
func (p *parser) scanGroup(closer TokenKind) {
	p.bump() // opener
	if p.scanExprUntil(func(t Token) bool { return t.Kind == closer }) {
		p.bump() // closer
	}
}

// scanBlock consumes a block keyword expression through its matching 'end'.
func (p *parser) scanBlock() {
	p.bump() // case / if / receive / try / begin / maybe
	if p.scanExprUntil(func(t Token) bool { return t.Kind == TokenKeyword && t.Text == "end" }) {
		p.bump() // end
	}
}

// scanFun handles both fun references (fun f/1, fun m:f/1) and lambdas
// (fun(X) -> X end), which are blocks closed by 'end'.
func (p *parser) scanFun() {
	if t1, ok := p.peekN(1); ok {
		isRef := false
		if t1.Kind == TokenAtom || t1.Kind == TokenVariable {
			if t2, ok2 := p.peekN(2); ok2 && (t2.Kind == TokenSlash || t2.Kind == TokenColon) {
				isRef = true
			}
		}
		if isRef {
			p.open(NodeFunRef)
			p.bump() // fun
			p.bump() // name or module
			if p.at(TokenColon) {
				p.bump() // :
				p.bump() // name
			}
			if p.at(TokenSlash) {
				p.bump() // /
				if p.at(TokenInteger) || p.at(TokenVariable) {
					p.bump() // arity
				}
			}
			p.close()
			return
		}
	}
	p.scanBlock()
}

// scanAtomExpr disambiguates a bare atom from a local call foo(...) and a
// remote call mod:foo(...).
func (p *parser) scanAtomExpr() {
	if p.isRemoteCallAhead() {
		p.parseRemoteCall()
		return
	}
	if t1, ok := p.peekN(1); ok && t1.Kind == TokenLParen {
		p.open(NodeCall)
		p.bump() // name
		p.parseArgList()
		p.close()
		return
	}
	p.bump()
}

// isRemoteCallAhead reports whether the next tokens form mod:fun( .
func (p *parser) isRemoteCallAhead() bool {
	t1, ok1 := p.peekN(1)
	t2, ok2 := p.peekN(2)
	t3, ok3 := p.peekN(3)
	return ok1 && ok2 && ok3 &&
		t1.Kind == TokenColon &&
		(t2.Kind == TokenAtom || t2.Kind == TokenVariable) &&
		t3.Kind == TokenLParen
}

func (p *parser) parseRemoteCall() {
	p.open(NodeRemoteCall)
	p.bump() // module (atom or variable)
	p.bump() // :
	p.bump() // function name
	p.parseArgList()
	p.close()
}

func (p *parser) scanMacroUse() {
	p.open(NodeMacroUse)
	p.bump() // ?
	if p.at(TokenAtom) || p.at(TokenVariable) {
		p.bump() // macro name
	}
	if t, ok := p.peek(); ok && t.Kind == TokenLParen {
		p.parseArgList()
	}
	p.close()
}

// scanRecordUse handles #name{...}, #name.field and bare #name.
func (p *parser) scanRecordUse() {
	p.open(NodeRecordUse)
	p.bump() // #
	if p.at(TokenAtom) {
		p.bump() // record name
	}
	if p.at(TokenLBrace) {
		p.scanGroup(TokenRBrace)
	} else if p.at(TokenPeriod) {
		p.bump() // .
		if p.at(TokenAtom) {
			p.bump() // field
		}
	}
	p.close()
}
