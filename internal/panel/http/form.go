package panelhttp

import (
	"time"

	"github.com/xuanji-ai/xuanji-web/internal/i18n"
	"github.com/xuanji-ai/xuanji-web/internal/panel"
	"github.com/xuanji-ai/xuanji-web/internal/view"
)

// OptionView is one choice of a select field.
type OptionView struct {
	Value    string
	Label    string
	Selected bool
}

// FieldView is a localized input ready for the template.
type FieldView struct {
	Name        string
	Label       string
	Placeholder string
	InputType   string
	Value       string
	Required    bool
	Error       string
	Options     []OptionView
}

// FormView is one rendered panel: form, busy flag and result region.
type FormView struct {
	ID              string
	Title           string
	Action          string
	SubmitLabel     string
	SubmittingLabel string
	ResultTitle     string
	Fields          []FieldView
	Busy            bool
	Status          string
	HasResult       bool
	Result          string
	ResultAt        time.Time
	ErrorSummary    string
}

// BuildForm turns a panel view into template data. fieldErrors holds
// validation codes keyed by field name.
func BuildForm(loc *i18n.Localizer, v panel.View, fieldErrors map[string]string) FormView {
	def := v.Definition
	form := FormView{
		ID:              def.ID,
		Title:           loc.T(def.TitleKey),
		Action:          "/panels/" + def.ID,
		SubmitLabel:     loc.T(def.SubmitKey),
		SubmittingLabel: loc.T("panel.submitting"),
		ResultTitle:     loc.T(def.ResultKey),
		Busy:            v.Busy,
		Status:          string(v.State.Status),
		HasResult:       v.State.HasResult(),
		ResultAt:        v.State.ResultAt,
	}
	if form.HasResult {
		form.Result = view.PrettyJSON(v.State.Result)
	}
	if len(fieldErrors) > 0 {
		form.ErrorSummary = loc.T("validation.summary")
	}
	for _, f := range def.Fields {
		fv := FieldView{
			Name:      f.Name,
			Label:     loc.T(f.LabelKey),
			InputType: inputType(f.Kind),
			Value:     panel.InputValue(f.Kind, v.Values.Get(f.Name)),
			Required:  f.Required,
		}
		if f.PlaceholderKey != "" {
			fv.Placeholder = loc.T(f.PlaceholderKey)
		}
		if code, ok := fieldErrors[f.Name]; ok {
			fv.Error = loc.T("validation." + code)
		}
		for _, opt := range f.Options {
			fv.Options = append(fv.Options, OptionView{
				Value:    opt.Value,
				Label:    loc.T(opt.LabelKey),
				Selected: opt.Value == fv.Value,
			})
		}
		form.Fields = append(form.Fields, fv)
	}
	return form
}

func inputType(kind panel.FieldKind) string {
	switch kind {
	case panel.KindDate:
		return "date"
	case panel.KindTime:
		return "time"
	case panel.KindDateTime:
		return "datetime-local"
	case panel.KindSelect:
		return "select"
	default:
		return "text"
	}
}

// Nav lists the main panels followed by the dashboard, marking the one
// served at currentPath.
func Nav(catalog *panel.Catalog, currentPath string) []view.NavItem {
	var items []view.NavItem
	for _, def := range catalog.InGroup(panel.GroupMain) {
		items = append(items, view.NavItem{
			Href:     def.Path(),
			LabelKey: def.TitleKey,
			Active:   currentPath == def.Path(),
		})
	}
	items = append(items, view.NavItem{
		Href:     "/dashboard",
		LabelKey: "nav.dashboard",
		Active:   currentPath == "/dashboard",
	})
	return items
}
