package format_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hal9000y/mailtriage/internal/format"
)

func TestHTMLToText(t *testing.T) {
	cases := []struct {
		name string
		html string
		want string
	}{
		{
			name: "paragraphs and inline",
			html: `<html><head><title>T</title><style>p{color:red}</style></head>` +
				`<body><p>Olá  <b>mundo</b>!</p><p>Segunda</p></body></html>`,
			want: "Olá mundo!\n\nSegunda",
		},
		{
			name: "line breaks",
			html: `<div>linha 1<br>linha 2</div><div>linha 3</div>`,
			want: "linha 1\nlinha 2\nlinha 3",
		},
		{
			name: "lists",
			html: `<p>Itens:</p><ul><li>um</li><li>dois</li></ul>`,
			want: "Itens:\n\n- um\n- dois",
		},
		{
			name: "table cells",
			html: `<table><tr><td>Pedido</td><td>123</td></tr><tr><td>Status</td><td>pendente</td></tr></table>`,
			want: "Pedido 123\nStatus pendente",
		},
		{
			name: "scripts dropped",
			html: `<body>Fatura<script>alert(1)</script> anexa<noscript>js</noscript></body>`,
			want: "Fatura anexa",
		},
		{
			name: "entities",
			html: `<p>Preço&nbsp;&amp;&nbsp;prazo</p>`,
			want: "Preço & prazo",
		},
		{
			name: "empty",
			html: ``,
			want: "",
		},
	}

	cnv := format.Converter{}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := cnv.HTMLToText([]byte(tc.html))
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
