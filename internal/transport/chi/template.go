package chi

import (
	"html/template"
	"net/http"
)

// pageData feeds the single-page form template.
type pageData struct {
	Ready     bool
	Source    string
	Kind      string
	Chunks    int
	Question  string
	Answer    string
	Grounded  bool
	Citations []string
	Notice    string
	Error     string
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>docqa</title>
<style>
body { font-family: sans-serif; max-width: 48rem; margin: 2rem auto; padding: 0 1rem; }
form { margin: 1rem 0; padding: 1rem; border: 1px solid #ccc; border-radius: 6px; }
.notice { color: #2a7a2a; }
.error { color: #a33; }
.answer { padding: 1rem; background: #f6f6f6; border-radius: 6px; white-space: pre-wrap; }
.citations { color: #555; font-size: 0.9em; }
</style>
</head>
<body>
<h1>docqa</h1>
{{if .Notice}}<p class="notice">{{.Notice}}</p>{{end}}
{{if .Error}}<p class="error">{{.Error}}</p>{{end}}

{{if .Ready}}
<p>Loaded <strong>{{.Source}}</strong> ({{.Kind}}, {{.Chunks}} chunks).</p>
{{else}}
<p>No source loaded yet. Upload a document or paste a URL.</p>
{{end}}

<form action="/ingest" method="post" enctype="multipart/form-data">
<p><label>File (PDF, TXT, MD, DOCX): <input type="file" name="file"></label></p>
<p><label>or URL: <input type="url" name="url" size="50" placeholder="https://..."></label></p>
<p><button type="submit">Ingest</button></p>
</form>

{{if .Ready}}
<form action="/ask" method="post">
<p><label>Question: <input type="text" name="question" size="60" value="{{.Question}}"></label></p>
<p><button type="submit">Ask</button></p>
</form>
{{end}}

{{if .Answer}}
<h2>Answer</h2>
<div class="answer">{{.Answer}}</div>
{{if .Citations}}
<p class="citations">Sources: {{range $i, $c := .Citations}}{{if $i}}, {{end}}{{$c}}{{end}}</p>
{{end}}
{{if not .Grounded}}<p class="citations">The loaded document did not cover this question.</p>{{end}}
{{end}}
</body>
</html>
`))

func renderPage(w http.ResponseWriter, status int, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = pageTemplate.Execute(w, data)
}
