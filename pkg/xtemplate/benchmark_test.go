package xtemplate

import (
	"testing"
)

var benchmarkTemplates = []struct {
	name     string
	template string
	data     map[string]interface{}
}{
	{
		name:     "simple_variable",
		template: "Hello, {{ name }}!",
		data:     map[string]interface{}{"name": "World"},
	},
	{
		name:     "multiple_variables",
		template: "{{ greeting }}, {{ name }}! Today is {{ day }}.",
		data:     map[string]interface{}{"greeting": "Hello", "name": "World", "day": "Monday"},
	},
	{
		name:     "conditional",
		template: "{{#if (isAdmin)}}Admin user: {{ user.name }}{{else}}Regular user: {{ user.name }}{{/if}}",
		data:     map[string]interface{}{"isAdmin": true, "user": map[string]interface{}{"name": "John"}},
	},
	{
		name:     "each_with_parent",
		template: "{{#each (items)}}{{#if (this > ../limit)}}{{xindex}}:{{this * 2}},{{/if}}{{/each}}",
		data:     map[string]interface{}{"items": []interface{}{1, 5, 12, 6, 19, 0, 44, 3}, "limit": 4},
	},
	{
		name:     "escaping",
		template: "<p>{{ body }}</p>{{{ raw }}}",
		data:     map[string]interface{}{"body": `<script>alert("x")</script>`, "raw": "<b>ok</b>"},
	},
}

func BenchmarkCompile(b *testing.B) {
	for _, tt := range benchmarkTemplates {
		b.Run(tt.name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := NewParser("", tt.template).ParseAll(); err != nil {
					b.Fatalf("Error parsing template: %v", err)
				}
			}
		})
	}
}

func BenchmarkRender(b *testing.B) {
	for _, tt := range benchmarkTemplates {
		tmpl := MustCompile(tt.template, nil)
		b.Run(tt.name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := tmpl.Render(tt.data); err != nil {
					b.Fatalf("Error rendering template: %v", err)
				}
			}
		})
	}
}

// BenchmarkRenderString includes the compile cache lookup.
func BenchmarkRenderString(b *testing.B) {
	for _, tt := range benchmarkTemplates {
		b.Run(tt.name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := RenderString(tt.template, tt.data); err != nil {
					b.Fatalf("Error rendering template: %v", err)
				}
			}
		})
	}
}

func BenchmarkParseExpression(b *testing.B) {
	exprs := []string{"name", "n + 3 * 4 / 2", "x > 1 && x < 10 || !q.x", `f(a, [1, 2], {k: "v"})`}
	for _, expr := range exprs {
		b.Run(expr, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := ParseExpression(expr); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
