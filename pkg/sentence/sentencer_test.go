package sentence

import (
	"reflect"
	"testing"
)

func feedAll(s *Sentencer, tokens []string) []string {
	var out []string
	for _, tok := range tokens {
		out = append(out, s.Feed(tok)...)
	}
	return out
}

func TestSentencer_Feed(t *testing.T) {
	tests := []struct {
		name      string
		tokens    []string
		want      []string
		wantFlush []string
	}{
		{
			name:   "end punctuation",
			tokens: []string{"今天天气真不错。我们出去玩吧！"},
			want:   []string{"今天天气真不错。", "我们出去玩吧！"},
		},
		{
			name:      "split across tokens",
			tokens:    []string{"今天天气", "真不错。明天", "呢？"},
			want:      []string{"今天天气真不错。"},
			wantFlush: []string{"明天呢？"},
		},
		{
			name:   "ascii punctuation",
			tokens: []string{"Hello there, how are you doing today? I am fine."},
			want:   []string{"Hello there,", "how are you doing today?", "I am fine."},
		},
		{
			name:   "decimal number not split",
			tokens: []string{"圆周率约等于3.14，记住了吗？"},
			want:   []string{"圆周率约等于3.14，", "记住了吗？"},
		},
		{
			name:   "multiple decimals in one sentence",
			tokens: []string{"version 2.5.3 is out."},
			want:   []string{"version 2.5.3 is out."},
		},
		{
			name:      "dot after digit at sentence end",
			tokens:    []string{"总共是42. 然后呢"},
			want:      []string{"总共是42."},
			wantFlush: []string{"然后呢"},
		},
		{
			name:      "dot after non digit",
			tokens:    []string{"好的我知道了. 那就这样"},
			want:      []string{"好的我知道了."},
			wantFlush: []string{"那就这样"},
		},
		{
			name:      "newline cuts",
			tokens:    []string{"第一行的内容\n第二行"},
			want:      []string{"第一行的内容"},
			wantFlush: []string{"第二行"},
		},
		{
			name:      "pause below min length keeps accumulating",
			tokens:    []string{"嗯，好的，我马上去办"},
			want:      []string{"嗯，好的，"},
			wantFlush: []string{"我马上去办"},
		},
		{
			name:      "emoji cuts and stays in text",
			tokens:    []string{"我们赢啦😀后续安排"},
			want:      []string{"我们赢啦😀"},
			wantFlush: []string{"后续安排"},
		},
		{
			name:      "kaomoji cut drops the face",
			tokens:    []string{"今天玩得真开心(≧▽≦)。"},
			want:      []string{"今天玩得真开心"},
			wantFlush: []string{"。"},
		},
		{
			name:      "punctuation only withheld until flush",
			tokens:    []string{"，，，，，。"},
			wantFlush: []string{"，，，，，。"},
		},
		{
			name:      "short tail flush",
			tokens:    []string{"好。"},
			wantFlush: []string{"好。"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSentencer()
			got := feedAll(s, tt.tokens)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Feed = %q; want %q", got, tt.want)
			}
			if flush := s.Flush(); !reflect.DeepEqual(flush, tt.wantFlush) {
				t.Errorf("Flush = %q; want %q", flush, tt.wantFlush)
			}
		})
	}
}

func TestSentencer_FlushResets(t *testing.T) {
	s := NewSentencer()
	if got := s.Feed("你好。"); got != nil {
		t.Fatalf("Feed = %q; want nil", got)
	}
	if got := s.Flush(); !reflect.DeepEqual(got, []string{"你好。"}) {
		t.Fatalf("Flush = %q; want [你好。]", got)
	}
	if got := s.Flush(); got != nil {
		t.Fatalf("second Flush = %q; want nil", got)
	}
	if got := s.Feed("继续说些什么。"); !reflect.DeepEqual(got, []string{"继续说些什么。"}) {
		t.Fatalf("Feed after Flush = %q; want [继续说些什么。]", got)
	}
}

func TestSentencer_RuneByRuneConcatenation(t *testing.T) {
	const text = "春眠不觉晓，处处闻啼鸟。夜来风雨声，花落知多少。"
	s := NewSentencer()
	var parts []string
	for _, r := range text {
		parts = append(parts, s.Feed(string(r))...)
	}
	parts = append(parts, s.Flush()...)
	want := []string{"春眠不觉晓，", "处处闻啼鸟。", "夜来风雨声，", "花落知多少。"}
	if !reflect.DeepEqual(parts, want) {
		t.Fatalf("parts = %q; want %q", parts, want)
	}
	var joined string
	for _, p := range parts {
		joined += p
	}
	if joined != text {
		t.Errorf("joined = %q; want %q", joined, text)
	}
}
