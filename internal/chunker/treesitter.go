package chunker

import (
	"context"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/ruby"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
	"github.com/smacker/go-tree-sitter/yaml"

	"github.com/karthik-sk/codesearch-core/pkg/models"
)

// grammar pairs a tree-sitter language with the set of top-level node
// types worth emitting as their own chunk, and the models.ElementType
// each maps to.
type grammar struct {
	language  *sitter.Language
	nodeTypes map[string]models.ElementType
}

func (g grammar) chunk(ctx context.Context, content []byte, lang string) ([]models.Chunk, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(g.language)
	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	root := tree.RootNode()
	var out []models.Chunk
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		count := int(n.NamedChildCount())
		for i := 0; i < count; i++ {
			child := n.NamedChild(i)
			if et, ok := g.nodeTypes[child.Type()]; ok {
				out = append(out, models.Chunk{
					StartLine:   int(child.StartPoint().Row) + 1,
					EndLine:     int(child.EndPoint().Row) + 1,
					Language:    lang,
					ElementType: et,
					Content:     child.Content(content),
				})
				continue
			}
			// Descend into wrapper nodes (export statements, decorators,
			// module bodies) that aren't chunks themselves but contain ones
			// that are, keeping declarations nested one level deep visible.
			if isContainer(child.Type()) {
				walk(child)
			}
		}
	}
	walk(root)
	return out, nil
}

func isContainer(nodeType string) bool {
	switch nodeType {
	case "export_statement", "decorated_definition", "program", "module", "source_file", "block":
		return true
	default:
		return false
	}
}

var grammars = map[string]grammar{
	"go": {
		language: golang.GetLanguage(),
		nodeTypes: map[string]models.ElementType{
			"function_declaration": models.ElementFunction,
			"method_declaration":   models.ElementMethod,
			"type_declaration":     models.ElementStruct,
		},
	},
	"python": {
		language: python.GetLanguage(),
		nodeTypes: map[string]models.ElementType{
			"function_definition": models.ElementFunction,
			"class_definition":    models.ElementClass,
		},
	},
	"javascript": {
		language: javascript.GetLanguage(),
		nodeTypes: map[string]models.ElementType{
			"function_declaration": models.ElementFunction,
			"class_declaration":    models.ElementClass,
			"method_definition":    models.ElementMethod,
			"lexical_declaration":  models.ElementFunction,
		},
	},
	"jsx": {
		language: javascript.GetLanguage(),
		nodeTypes: map[string]models.ElementType{
			"function_declaration": models.ElementFunction,
			"class_declaration":    models.ElementClass,
			"method_definition":    models.ElementMethod,
			"lexical_declaration":  models.ElementFunction,
		},
	},
	"typescript": {
		language: typescript.GetLanguage(),
		nodeTypes: map[string]models.ElementType{
			"function_declaration":  models.ElementFunction,
			"class_declaration":     models.ElementClass,
			"method_definition":     models.ElementMethod,
			"interface_declaration": models.ElementStruct,
		},
	},
	"tsx": {
		language: tsx.GetLanguage(),
		nodeTypes: map[string]models.ElementType{
			"function_declaration":  models.ElementFunction,
			"class_declaration":     models.ElementClass,
			"method_definition":     models.ElementMethod,
			"interface_declaration": models.ElementStruct,
		},
	},
	"ruby": {
		language: ruby.GetLanguage(),
		nodeTypes: map[string]models.ElementType{
			"method":        models.ElementMethod,
			"class":         models.ElementClass,
			"module":        models.ElementModule,
			"singleton_method": models.ElementMethod,
		},
	},
	"rust": {
		language: rust.GetLanguage(),
		nodeTypes: map[string]models.ElementType{
			"function_item": models.ElementFunction,
			"struct_item":   models.ElementStruct,
			"impl_item":     models.ElementImpl,
			"trait_item":    models.ElementStruct,
			"mod_item":      models.ElementModule,
		},
	},
	"yaml": {
		language: yaml.GetLanguage(),
		nodeTypes: map[string]models.ElementType{
			"block_mapping_pair": models.ElementModule,
			"document":           models.ElementModule,
		},
	},
}
