package xtemplate

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func render(t *testing.T, tpl string, data interface{}, commands Commands) string {
	t.Helper()
	tmpl, err := Compile(tpl, &Options{Commands: commands})
	require.NoError(t, err, "compile %q", tpl)
	out, err := tmpl.Render(data)
	require.NoError(t, err, "render %q", tpl)
	return out
}

func TestRenderExpressions(t *testing.T) {
	tests := []struct {
		name     string
		template string
		data     interface{}
		want     string
	}{
		{name: "literal", template: "{{1}}", want: "1"},
		{name: "empty template", template: "", want: ""},
		{name: "text only", template: "Hello World!", want: "Hello World!"},
		{
			name:     "keyword prefixed identifiers",
			template: "{{trueX}} {{falseX}} {{nullX}} {{undefinedX}}",
			data:     map[string]interface{}{"trueX": 1, "falseX": 2, "nullX": 3, "undefinedX": 4},
			want:     "1 2 3 4",
		},
		{name: "double close followed by brace", template: "{{1}}}", want: "1}"},
		{name: "grouping", template: "{{3 - (1+1)}}", want: "1"},
		{name: "modulus", template: "{{3 % 2}}", want: "1"},
		{name: "backslash before a tag", template: `C:\\{{dir}}`, data: map[string]interface{}{"dir": "tmp"}, want: `C:\tmp`},
		{name: "odd backslashes escape the tag", template: `\\\{{dir}}`, data: map[string]interface{}{"dir": "tmp"}, want: `\{{dir}}`},
		{name: "raw concatenation keeps backslash", template: `{{{"2<\\"+1}}} {{{"2<\\"+1}}}`, want: `2<\1 2<\1`},
		{name: "minus after identifier is subtraction", template: "{{n-1}}", data: map[string]interface{}{"n": 10}, want: "9"},
		{name: "precedence", template: "{{n+3*4/2}}", data: map[string]interface{}{"n": 1}, want: "7"},
		{name: "string concatenation", template: `{{n+" is good"}}`, data: map[string]interface{}{"n": "xtemplate"}, want: "xtemplate is good"},
		{
			name:     "escapes in string literal",
			template: `{{{"\n \' \\\'"}}} | ` + "\n" + ` \' \\\'`,
			want:     "\n ' \\' | \n \\' \\\\\\'",
		},
		{name: "array literal", template: "{{[1,2]}}", want: "1,2"},
		{name: "negative literal", template: "{{-2 * 3}}", want: "-6"},
		{name: "fraction", template: "{{1/4}}", want: "0.25"},
		{name: "division by zero", template: "{{1/0}}", want: "Infinity"},
		{name: "modulus by zero", template: "{{1%0}}", want: "NaN"},
		{name: "left associative subtraction", template: "{{10-4-3}}", want: "3"},
		{name: "number plus string", template: `{{1+"2"}}`, want: "12"},
		{name: "string times number", template: `{{"3"*2}}`, want: "6"},
		{name: "null plus one", template: "{{null+1}}", want: "1"},
		{name: "undefined plus one", template: "{{undefined+1}}", want: "NaN"},
		{name: "missing renders empty", template: "[{{missing}}]", want: "[]"},
		{name: "null renders empty", template: "[{{null}}]", want: "[]"},
		{name: "nested missing renders empty", template: "[{{a.b.c}}]", data: map[string]interface{}{"a": 1}, want: "[]"},
		{name: "booleans", template: "{{true}} {{!true}} {{!!0}}", want: "true false false"},
		{name: "strict equality across types", template: `{{1 === "1"}} {{1 !== "1"}}`, want: "false true"},
		{name: "string comparison", template: `{{"b" > "a"}} {{"10" < "9"}}`, want: "true true"},
		{name: "mixed comparison is numeric", template: `{{"10" < 9}}`, want: "false"},
		{name: "or returns deciding operand", template: `{{missing || "fallback"}}`, want: "fallback"},
		{name: "and returns deciding operand", template: `{{0 && "never"}}`, want: "0"},
		{name: "dotted path", template: "{{user.name}}", data: map[string]interface{}{"user": map[string]interface{}{"name": "Ann"}}, want: "Ann"},
		{name: "subscript", template: `{{items[1]}} {{user["name"]}}`, data: map[string]interface{}{"items": []string{"a", "b"}, "user": map[string]string{"name": "Bo"}}, want: "b Bo"},
		{name: "length property", template: "{{items.length}} {{word.length}}", data: map[string]interface{}{"items": []int{1, 2, 3}, "word": "four"}, want: "3 4"},
		{name: "object literal prints as object", template: "{{ {x: 1} }}", want: "[object Object]"},
		{name: "large number", template: "{{1e21}}", want: "1e+21"},
		{name: "small number", template: "{{0.0000001}}", want: "1e-7"},
		{name: "comment", template: "a{{! ignored }}b", want: "ab"},
		{name: "escaped open", template: `\{{name}}`, data: map[string]interface{}{"name": "x"}, want: "{{name}}"},
		{name: "this at root", template: "{{this}}", data: "root", want: "root"},
		{name: "struct field", template: "{{Name}} {{age}}", data: struct {
			Name string
			Age  int
		}{"Ann", 7}, want: "Ann 7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := render(t, tt.template, tt.data, nil)
			if got != tt.want {
				t.Errorf("Render(%q) = %q, want %q", tt.template, got, tt.want)
			}
		})
	}
}

func TestRenderEscaping(t *testing.T) {
	data := map[string]interface{}{"html": `<a href="x">&'</a>`}

	assert.Equal(t, "&lt;a href=&#34;x&#34;&gt;&amp;&#39;&lt;/a&gt;", render(t, "{{html}}", data, nil))
	assert.Equal(t, `<a href="x">&'</a>`, render(t, "{{{html}}}", data, nil))
	assert.Equal(t, "&lt;b&gt;", render(t, `{{{escape("<b>")}}}`, nil, nil))
	assert.Equal(t, "a &amp; b", render(t, `{{"a" + " & " + "b"}}`, nil, nil))
}

func TestRenderRelational(t *testing.T) {
	tpl := "{{#if( n > n2+4/2)}}{{n+1}}{{else}}{{n2+1}}{{/if}}"
	tpl3 := "{{#if (n === n2+4/2)}}{{n+1}}{{else}}{{n2+1}}{{/if}}"
	tpl4 := "{{#if (n !== n2+4/2)}}{{n+1}}{{else}}{{n2+1}}{{/if}}"

	tests := []struct {
		template string
		data     map[string]interface{}
		want     string
	}{
		{tpl, map[string]interface{}{"n": 5, "n2": 2}, "6"},
		{tpl, map[string]interface{}{"n": 1, "n2": 2}, "3"},
		{tpl3, map[string]interface{}{"n": 4, "n2": 2}, "5"},
		{tpl4, map[string]interface{}{"n": 4, "n2": 2}, "3"},
		{"{{#if (n<5)}}0{{else}}1{{/if}}", map[string]interface{}{"n": 5}, "1"},
		{"{{#if (n>=4)}}1{{else}}0{{/if}}", map[string]interface{}{"n": 4}, "1"},
		{"{{#if (n<=3)}}0{{else}}1{{/if}}", map[string]interface{}{"n": 4}, "1"},
		{"{{#if (!n)}}1{{/if}}", map[string]interface{}{"n": 1}, ""},
		{"{{#if (!n)}}1{{/if}}", map[string]interface{}{"n": 0}, "1"},
		{"{{#if (x>1 && x<10)}}1{{else}}0{{/if}}{{#if (q && q.x<10)}}1{{else}}0{{/if}}", map[string]interface{}{"x": 2}, "10"},
		{"{{#if (x>1 && x<10)}}1{{else}}0{{/if}}{{#if (q && q.x<10)}}1{{else}}0{{/if}}", map[string]interface{}{"x": 21, "q": map[string]interface{}{"x": 2}}, "01"},
	}

	for _, tt := range tests {
		got := render(t, tt.template, tt.data, nil)
		if got != tt.want {
			t.Errorf("Render(%q, %v) = %q, want %q", tt.template, tt.data, got, tt.want)
		}
	}
}

func TestRenderBlocks(t *testing.T) {
	tests := []struct {
		name     string
		template string
		data     interface{}
		want     string
	}{
		{
			name:     "each with parent lookup and specials",
			template: "{{#each (data)}}{{#if (this > ../limit+1)}}{{this+1}}-{{xindex+1}}-{{xcount}}|{{/if}}{{/each}}",
			data:     map[string]interface{}{"data": []interface{}{11, 5, 12, 6, 19, 0}, "limit": 10},
			want:     "13-3-6|20-5-6|",
		},
		{
			name:     "with and parent lookup",
			template: "{{#with (data)}}{{#if (n > ../limit/5)}}{{n+1}}{{/if}}{{/with}}",
			data:     map[string]interface{}{"data": map[string]interface{}{"n": 5}, "limit": 10},
			want:     "6",
		},
		{name: "each over array literal", template: "{{#each([1,2])}}{{this}}{{#if(xindex !== 1)}}+{{/if}}{{/each}}", want: "1+2"},
		{name: "with object literal", template: "{{# with({x:2}) }}{{x}}{{/with}}", want: "2"},
		{name: "with quoted key", template: `{{# with({"x":2}) }}{{x}}{{/with}}`, want: "2"},
		{name: "each over object literal", template: `{{#each({"x":2})}}{{xindex}}+{{this}}{{/each}}`, want: "x+2"},
		{name: "object literal keeps source order", template: `{{#each({b:1, a:2, c:3})}}{{xindex}}{{/each}}`, want: "bac"},
		{
			name:     "go map iterates in sorted order",
			template: "{{#each(m)}}{{xindex}}={{this}};{{/each}}",
			data:     map[string]interface{}{"m": map[string]int{"b": 2, "a": 1, "c": 3}},
			want:     "a=1;b=2;c=3;",
		},
		{name: "each over empty renders else", template: "{{#each(items)}}x{{else}}none{{/each}}", data: map[string]interface{}{"items": []interface{}{}}, want: "none"},
		{name: "each over missing renders else", template: "{{#each(items)}}x{{else}}none{{/each}}", want: "none"},
		{name: "each over string renders nothing", template: `{{#each("abc")}}x{{/each}}`, want: ""},
		{name: "empty array is truthy", template: "{{#if([])}}yes{{else}}no{{/if}}", want: "yes"},
		{name: "empty object is truthy", template: "{{#if({})}}yes{{else}}no{{/if}}", want: "yes"},
		{name: "empty string is falsy", template: `{{#if("")}}yes{{else}}no{{/if}}`, want: "no"},
		{name: "if without parentheses", template: "{{#if ok}}yes{{/if}}", data: map[string]interface{}{"ok": true}, want: "yes"},
		{name: "if does not push a frame", template: "{{#with(a)}}{{#if(1)}}{{../b}}{{/if}}{{/with}}", data: map[string]interface{}{"a": map[string]interface{}{"x": 1}, "b": "B"}, want: "B"},
		{name: "with falsy renders else", template: "{{#with(missing)}}x{{else}}none{{/with}}", want: "none"},
		{
			name:     "nested each",
			template: "{{#each(rows)}}{{#each(this)}}{{../xindex}}.{{xindex}}={{this}} {{/each}}{{/each}}",
			data:     map[string]interface{}{"rows": []interface{}{[]interface{}{"a", "b"}, []interface{}{"c"}}},
			want:     "0.0=a 0.1=b 1.0=c ",
		},
		{
			name:     "name lookup falls back to outer frames",
			template: "{{#each(items)}}{{title}}:{{this}} {{/each}}",
			data:     map[string]interface{}{"items": []interface{}{1, 2}, "title": "n"},
			want:     "n:1 n:2 ",
		},
		{name: "parent beyond root is undefined", template: "[{{../../x}}]", data: map[string]interface{}{"x": 1}, want: "[]"},
		{name: "xindex at root is undefined", template: "[{{xindex}}]", want: "[]"},
		{
			name:     "each over objects",
			template: "{{#each(users)}}{{name}}{{#if(xindex < xcount-1)}}, {{/if}}{{/each}}",
			data:     map[string]interface{}{"users": []map[string]string{{"name": "Ann"}, {"name": "Bo"}}},
			want:     "Ann, Bo",
		},
		{name: "each over range", template: "{{#each(range(3))}}{{this}}{{/each}}", want: "012"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := render(t, tt.template, tt.data, nil)
			if got != tt.want {
				t.Errorf("Render(%q) = %q, want %q", tt.template, got, tt.want)
			}
		})
	}
}

func TestShortCircuit(t *testing.T) {
	tests := []struct {
		name    string
		tpl     string
		data    map[string]interface{}
		want    string
		wantRan bool
	}{
		{"and with falsy left", "{{#if(arr && run())}}ok{{else}}not ok{{/if}}", map[string]interface{}{}, "not ok", false},
		{"and with truthy left", "{{#if(arr && run())}}ok{{else}}not ok{{/if}}", map[string]interface{}{"arr": 1}, "not ok", true},
		{"or with falsy left", "{{#if(arr || run())}}ok{{else}}not ok{{/if}}", map[string]interface{}{}, "not ok", true},
		{"or with truthy left", "{{#if(arr || run())}}ok{{else}}not ok{{/if}}", map[string]interface{}{"arr": 1}, "ok", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ran := false
			commands := Commands{"run": func(*Scope, *Option) (interface{}, error) {
				ran = true
				return nil, nil
			}}
			assert.Equal(t, tt.want, render(t, tt.tpl, tt.data, commands))
			assert.Equal(t, tt.wantRan, ran)
		})
	}
}

func TestCommands(t *testing.T) {
	transform := Commands{"transform": func(_ *Scope, option *Option) (interface{}, error) {
		return ToNumber(option.Params[0]) + 1, nil
	}}
	assert.Equal(t, "2", render(t, "{{#if (transform(x) === 2)}}2{{else}}1{{/if}}", map[string]interface{}{"x": 1}, transform))

	t.Run("arguments are evaluated left to right", func(t *testing.T) {
		var order []string
		commands := Commands{
			"mark": func(_ *Scope, option *Option) (interface{}, error) {
				order = append(order, ToString(option.Param(0)))
				return option.Param(0), nil
			},
			"pair": func(_ *Scope, option *Option) (interface{}, error) {
				return fmt.Sprintf("%v|%v", option.Params[0], option.Params[1]), nil
			},
		}
		assert.Equal(t, "a|b", render(t, `{{pair(mark("a"), mark("b"))}}`, nil, commands))
		assert.Equal(t, []string{"a", "b"}, order)
	})

	t.Run("command sees the current scope", func(t *testing.T) {
		commands := Commands{"here": func(scope *Scope, _ *Option) (interface{}, error) {
			return scope.Get("../label").(string) + ":" + ToString(scope.This()), nil
		}}
		got := render(t, "{{#each(items)}}{{here()}} {{/each}}", map[string]interface{}{"items": []interface{}{1, 2}, "label": "L"}, commands)
		assert.Equal(t, "L:1 L:2 ", got)
	})

	t.Run("command result is escaped in double braces", func(t *testing.T) {
		commands := Commands{"tag": func(*Scope, *Option) (interface{}, error) { return "<b>", nil }}
		assert.Equal(t, "&lt;b&gt; <b>", render(t, "{{tag()}} {{{tag()}}}", nil, commands))
	})

	t.Run("dotted command name", func(t *testing.T) {
		commands := Commands{"str.upper": upperCommand}
		assert.Equal(t, "HI", render(t, `{{str.upper("hi")}}`, nil, commands))
	})

	t.Run("block command", func(t *testing.T) {
		commands := Commands{"repeat": func(scope *Scope, option *Option) (interface{}, error) {
			var sb strings.Builder
			n := int(ToNumber(option.Param(0)))
			for i := 0; i < n; i++ {
				s, err := option.Fn(scope.Push(i))
				if err != nil {
					return nil, err
				}
				sb.WriteString(s)
			}
			if n == 0 && option.Inverse != nil {
				return option.Inverse(scope)
			}
			return sb.String(), nil
		}}
		assert.Equal(t, "[0<][1<]", render(t, "{{#repeat(2)}}[{{this}}{{{lt}}}]{{/repeat}}", map[string]interface{}{"lt": "<"}, commands))
		assert.Equal(t, "[0&lt;]", render(t, "{{#repeat(1)}}[{{this}}{{lt}}]{{/repeat}}", map[string]interface{}{"lt": "<"}, commands))
		assert.Equal(t, "empty", render(t, "{{#repeat(0)}}x{{else}}empty{{/repeat}}", nil, commands))
	})

	t.Run("block command without arguments", func(t *testing.T) {
		commands := Commands{"bold": func(scope *Scope, option *Option) (interface{}, error) {
			body, err := option.Fn(scope)
			if err != nil {
				return nil, err
			}
			return "<b>" + body + "</b>", nil
		}}
		assert.Equal(t, "<b>hi &amp; bye</b>", render(t, "{{#bold}}hi {{amp}} bye{{/bold}}", map[string]interface{}{"amp": "&"}, commands))
	})

	t.Run("per template commands override engine commands", func(t *testing.T) {
		commands := Commands{"upper": func(*Scope, *Option) (interface{}, error) { return "overridden", nil }}
		assert.Equal(t, "overridden", render(t, `{{upper("x")}}`, nil, commands))
		assert.Equal(t, "X", render(t, `{{upper("x")}}`, nil, nil))
	})
}

func TestRenderErrors(t *testing.T) {
	t.Run("unknown command", func(t *testing.T) {
		tmpl, err := Compile("{{uper(name)}}", nil)
		require.NoError(t, err, "unknown commands are not a compile error")
		_, err = tmpl.Render(map[string]interface{}{"name": "x"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrUnknownCommand))

		var uce *UnknownCommandError
		require.True(t, errors.As(err, &uce))
		assert.Equal(t, "uper", uce.Name)
		assert.Equal(t, "upper", uce.Suggestion)
	})

	t.Run("unknown block command", func(t *testing.T) {
		_, err := RenderString("{{#nope(1)}}x{{/nope}}", nil)
		assert.ErrorIs(t, err, ErrUnknownCommand)
	})

	t.Run("unknown command in untaken branch is fine", func(t *testing.T) {
		out, err := RenderString("{{#if(false)}}{{nope()}}{{/if}}ok", nil)
		require.NoError(t, err)
		assert.Equal(t, "ok", out)
	})

	t.Run("command error is wrapped", func(t *testing.T) {
		boom := errors.New("boom")
		tmpl, err := Compile("{{fail()}}", &Options{Name: "page", Commands: Commands{
			"fail": func(*Scope, *Option) (interface{}, error) { return nil, boom },
		}})
		require.NoError(t, err)
		out, err := tmpl.Render(nil)
		assert.Empty(t, out)
		assert.ErrorIs(t, err, boom)

		var ce *CommandError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, "fail", ce.Name)
		assert.Contains(t, err.Error(), `"page"`)
	})
}

func TestRenderDoesNotMutateData(t *testing.T) {
	data := map[string]interface{}{"items": []interface{}{1, 2}, "user": map[string]interface{}{"name": "Ann"}}
	render(t, "{{#each(items)}}{{this}}{{/each}}{{#with(user)}}{{name}}{{/with}}", data, nil)
	assert.Equal(t, map[string]interface{}{"items": []interface{}{1, 2}, "user": map[string]interface{}{"name": "Ann"}}, data)
}

func TestConcurrentRender(t *testing.T) {
	tmpl := MustCompile("{{#each(items)}}{{this * factor}},{{/each}}", nil)

	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(factor int) {
			defer wg.Done()
			out, err := tmpl.Render(map[string]interface{}{"items": []int{1, 2, 3}, "factor": factor})
			if err != nil {
				errs <- err
				return
			}
			if want := fmt.Sprintf("%d,%d,%d,", factor, 2*factor, 3*factor); out != want {
				errs <- fmt.Errorf("factor %d: got %q, want %q", factor, out, want)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
