package secrets

import "strings"

// Placeholder — строка, которой заменяются значения секретов в выводе.
const Placeholder = "***"

// Redactor вырезает значения секретов из текста.
//
// Редактирование безусловно: применяется к захваченному выводу команд,
// текстам ошибок и сводке run до того, как они покидают движок.
type Redactor struct {
	replacer *strings.Replacer
}

// NewRedactor создаёт Redactor для набора значений.
// Пустые значения игнорируются — иначе Replacer вставлял бы
// плейсхолдер между каждой парой символов.
func NewRedactor(values ...string) *Redactor {
	pairs := make([]string, 0, len(values)*2)
	for _, v := range values {
		if v == "" {
			continue
		}
		pairs = append(pairs, v, Placeholder)
	}

	if len(pairs) == 0 {
		return &Redactor{}
	}

	return &Redactor{replacer: strings.NewReplacer(pairs...)}
}

// NewRedactorFromMap создаёт Redactor из резолвленных секретов.
func NewRedactorFromMap(resolved map[string]string) *Redactor {
	values := make([]string, 0, len(resolved))
	for _, v := range resolved {
		values = append(values, v)
	}
	return NewRedactor(values...)
}

// Redact возвращает текст с вырезанными секретами.
func (r *Redactor) Redact(s string) string {
	if r == nil || r.replacer == nil {
		return s
	}
	return r.replacer.Replace(s)
}
