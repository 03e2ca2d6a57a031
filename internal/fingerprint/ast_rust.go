package fingerprint

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/rust"
)

// tokenizeRust parses a Rust source and emits one tag per visited construct,
// in source order, the same shape the token-sequence comparison in
// Similarity expects. (ASTHash is computed from the raw source, not from
// these tokens.)
func tokenizeRust(code string) ([]string, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(rust.GetLanguage())

	src := []byte(code)
	tree, err := parser.ParseCtx(context.Background(), nil, src)
	if err != nil {
		return nil, fmt.Errorf("parse rust source: %w", err)
	}

	var tokens []string
	walkRust(tree.RootNode(), src, &tokens)
	return tokens, nil
}

func walkRust(n *sitter.Node, src []byte, tokens *[]string) {
	if n == nil {
		return
	}

	switch n.Type() {
	case "function_item":
		*tokens = append(*tokens, "fn")
		walkRustChildren(n, src, tokens)
		return
	case "struct_item":
		*tokens = append(*tokens, "struct")
		return // does not recurse into its body
	case "enum_item":
		*tokens = append(*tokens, "enum")
		return
	case "impl_item":
		*tokens = append(*tokens, "impl")
		return
	case "if_expression":
		*tokens = append(*tokens, "if")
		if cond := n.ChildByFieldName("condition"); cond != nil {
			walkRust(cond, src, tokens)
		}
		if then := n.ChildByFieldName("consequence"); then != nil {
			walkRust(then, src, tokens)
		}
		return // never recurses into an else branch
	case "for_expression":
		*tokens = append(*tokens, "for")
		walkRustChildren(n, src, tokens)
		return
	case "while_expression":
		*tokens = append(*tokens, "while")
		walkRustChildren(n, src, tokens)
		return
	case "block":
		*tokens = append(*tokens, "block")
		walkRustChildren(n, src, tokens)
		return
	case "expression_statement":
		*tokens = append(*tokens, "expr_stmt")
		walkRustChildren(n, src, tokens)
		return
	case "call_expression":
		if isRustMethodCall(n) {
			*tokens = append(*tokens, "method_call")
		} else {
			*tokens = append(*tokens, "call")
		}
		walkRustChildren(n, src, tokens)
		return
	case "identifier", "scoped_identifier", "field_identifier":
		*tokens = append(*tokens, "path")
		return
	case "integer_literal", "float_literal", "string_literal", "char_literal", "boolean_literal":
		*tokens = append(*tokens, "literal")
		return
	case "assignment_expression":
		*tokens = append(*tokens, "assign")
		walkRustChildren(n, src, tokens)
		return
	case "mod_item":
		*tokens = append(*tokens, "module_decl")
		return
	}

	if n.IsNamed() {
		if isRustStatement(n.Type()) {
			*tokens = append(*tokens, "other_stmt")
		} else if isRustItem(n.Type()) {
			*tokens = append(*tokens, "other_item")
		} else if n.Type() != "source_file" {
			*tokens = append(*tokens, "other_expr")
		}
	}
	walkRustChildren(n, src, tokens)
}

func walkRustChildren(n *sitter.Node, src []byte, tokens *[]string) {
	count := int(n.ChildCount())
	for i := 0; i < count; i++ {
		walkRust(n.Child(i), src, tokens)
	}
}

func isRustMethodCall(call *sitter.Node) bool {
	fn := call.ChildByFieldName("function")
	if fn == nil {
		return false
	}
	return fn.Type() == "field_expression"
}

func isRustStatement(nodeType string) bool {
	switch nodeType {
	case "let_declaration", "return_expression", "break_expression", "continue_expression":
		return true
	}
	return false
}

func isRustItem(nodeType string) bool {
	switch nodeType {
	case "trait_item", "use_declaration", "const_item", "static_item", "type_item":
		return true
	}
	return false
}
