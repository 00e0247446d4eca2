package panel

import (
	"strconv"
	"time"
)

// Calendar and gender values are passed through to the backend uninterpreted.
const (
	CalendarSolar = "阳历"
	CalendarLunar = "阴历"

	GenderFemale = "女"
	GenderMale   = "男"

	ModeSixLines   = "小六爻"
	ModeSixRen     = "小六壬"
	ModeCovertGate = "奇门遁甲"
	ModePurpleOdd  = "紫薇奇数"
	// The lottery and divination endpoints spell the fusion mode differently.
	ModeFusionPredict = "AI融合预测"
	ModeFusion        = "AI融合"
)

// Panel identifiers.
const (
	IDLottery    = "ssq"
	IDBaziChart  = "bazi"
	IDDivination = "divination"
	IDNaming     = "naming"
	IDOptimize   = "optimize"
	IDStock      = "stock"
	IDWeather    = "weather"
)

// LotteryRequest is the /api/ssq_predict body.
type LotteryRequest struct {
	Date        string `json:"date"`
	Time        string `json:"time"`
	Period      string `json:"period"`
	Calendar    string `json:"calendar"`
	PredictTime string `json:"predict_time"`
	Mode        string `json:"mode"`
}

// ChartRequest is the /api/bazi_chart body.
type ChartRequest struct {
	Calendar string `json:"calendar"`
	Year     int    `json:"year"`
	Month    int    `json:"month"`
	Day      int    `json:"day"`
	Hour     int    `json:"hour"`
	Minute   int    `json:"minute"`
}

// DivinationRequest is the /api/divination body.
type DivinationRequest struct {
	Event    string `json:"event"`
	Calendar string `json:"calendar"`
	Date     string `json:"date"`
	Time     string `json:"time"`
	Mode     string `json:"mode"`
}

// NamingRequest is the /api/name_generate body.
type NamingRequest struct {
	Gender   string `json:"gender"`
	Calendar string `json:"calendar"`
	Year     int    `json:"year"`
	Month    int    `json:"month"`
	Day      int    `json:"day"`
	Hour     int    `json:"hour"`
	Minute   int    `json:"minute"`
	Surname  string `json:"surname"`
}

// StockRequest is the /api/predict_stock body.
type StockRequest struct {
	Symbol string `json:"symbol"`
}

// WeatherRequest is the /api/predict_weather body.
type WeatherRequest struct {
	Location string `json:"location"`
}

func calendarField() Field {
	return Field{
		Name:     "calendar",
		Kind:     KindSelect,
		LabelKey: "field.calendar",
		Required: true,
		Options: []Option{
			{Value: CalendarSolar, LabelKey: "option.calendar.solar"},
			{Value: CalendarLunar, LabelKey: "option.calendar.lunar"},
		},
	}
}

func modeField(labelKey, fusion string) Field {
	return Field{
		Name:     "mode",
		Kind:     KindSelect,
		LabelKey: labelKey,
		Required: true,
		Options: []Option{
			{Value: ModeSixLines, LabelKey: "option.mode.six_lines"},
			{Value: ModeSixRen, LabelKey: "option.mode.six_ren"},
			{Value: ModeCovertGate, LabelKey: "option.mode.covert_gate"},
			{Value: ModePurpleOdd, LabelKey: "option.mode.purple_odd"},
			{Value: fusion, LabelKey: "option.mode.fusion"},
		},
		Default: func(time.Time) string { return fusion },
	}
}

func dateField(labelKey string) Field {
	return Field{Name: "date", Kind: KindDate, LabelKey: labelKey, Required: true}
}

func timeField(labelKey string) Field {
	return Field{Name: "time", Kind: KindTime, LabelKey: labelKey, Required: true}
}

// LotteryPanel predicts the next double-colour-ball draw.
func LotteryPanel() Definition {
	return Definition{
		ID:         IDLottery,
		Group:      GroupMain,
		Endpoint:   "/api/ssq_predict",
		TitleKey:   "panel.ssq.title",
		SubmitKey:  "panel.ssq.submit",
		ResultKey:  "panel.ssq.result",
		FailureKey: "panel.ssq.failure",
		Fields: []Field{
			dateField("field.draw_date"),
			timeField("field.draw_time"),
			{
				Name:           "period",
				Kind:           KindText,
				LabelKey:       "field.period",
				PlaceholderKey: "field.period.placeholder",
				Required:       true,
				Default:        func(now time.Time) string { return strconv.Itoa(now.Year()) + "001" },
			},
			calendarField(),
			{Name: "predict_time", Kind: KindDateTime, LabelKey: "field.predict_time", Required: true},
			modeField("field.predict_mode", ModeFusionPredict),
		},
		Encode: func(v Values) (any, error) {
			return LotteryRequest{
				Date:        v.Get("date"),
				Time:        v.Get("time"),
				Period:      v.Get("period"),
				Calendar:    v.Get("calendar"),
				PredictTime: v.Get("predict_time"),
				Mode:        v.Get("mode"),
			}, nil
		},
	}
}

// ChartPanel casts a four-pillar birth chart.
func ChartPanel() Definition {
	return Definition{
		ID:         IDBaziChart,
		Group:      GroupMain,
		Endpoint:   "/api/bazi_chart",
		TitleKey:   "panel.bazi.title",
		SubmitKey:  "panel.bazi.submit",
		ResultKey:  "panel.bazi.result",
		FailureKey: "panel.bazi.failure",
		Fields: []Field{
			calendarField(),
			dateField("field.birth_date"),
			timeField("field.birth_time"),
		},
		Encode: func(v Values) (any, error) {
			c, err := v.components("date", "time")
			if err != nil {
				return nil, err
			}
			return ChartRequest{
				Calendar: v.Get("calendar"),
				Year:     c.Year,
				Month:    c.Month,
				Day:      c.Day,
				Hour:     c.Hour,
				Minute:   c.Minute,
			}, nil
		},
	}
}

// DivinationPanel answers a question about a matter.
func DivinationPanel() Definition {
	return Definition{
		ID:         IDDivination,
		Group:      GroupMain,
		Endpoint:   "/api/divination",
		TitleKey:   "panel.divination.title",
		SubmitKey:  "panel.divination.submit",
		ResultKey:  "panel.divination.result",
		FailureKey: "panel.divination.failure",
		Fields: []Field{
			{Name: "event", Kind: KindText, LabelKey: "field.event", Required: true},
			calendarField(),
			dateField("field.cast_date"),
			timeField("field.cast_time"),
			modeField("field.divination_mode", ModeFusion),
		},
		Encode: func(v Values) (any, error) {
			return DivinationRequest{
				Event:    v.Get("event"),
				Calendar: v.Get("calendar"),
				Date:     v.Get("date"),
				Time:     v.Get("time"),
				Mode:     v.Get("mode"),
			}, nil
		},
	}
}

// NamingPanel proposes given names for a birth moment and surname.
func NamingPanel() Definition {
	return Definition{
		ID:         IDNaming,
		Group:      GroupMain,
		Endpoint:   "/api/name_generate",
		TitleKey:   "panel.naming.title",
		SubmitKey:  "panel.naming.submit",
		ResultKey:  "panel.naming.result",
		FailureKey: "panel.naming.failure",
		Fields: []Field{
			{
				Name:     "gender",
				Kind:     KindSelect,
				LabelKey: "field.gender",
				Required: true,
				Options: []Option{
					{Value: GenderFemale, LabelKey: "option.gender.female"},
					{Value: GenderMale, LabelKey: "option.gender.male"},
				},
			},
			calendarField(),
			dateField("field.birth_date"),
			timeField("field.birth_time"),
			{Name: "surname", Kind: KindText, LabelKey: "field.surname", PlaceholderKey: "field.surname.placeholder", Required: true},
		},
		Encode: func(v Values) (any, error) {
			c, err := v.components("date", "time")
			if err != nil {
				return nil, err
			}
			return NamingRequest{
				Gender:   v.Get("gender"),
				Calendar: v.Get("calendar"),
				Year:     c.Year,
				Month:    c.Month,
				Day:      c.Day,
				Hour:     c.Hour,
				Minute:   c.Minute,
				Surname:  v.Get("surname"),
			}, nil
		},
	}
}

// OptimizePanel triggers a model optimisation run. It sends no body.
func OptimizePanel() Definition {
	return Definition{
		ID:         IDOptimize,
		Group:      GroupDashboard,
		Endpoint:   "/api/optimize_models",
		TitleKey:   "panel.optimize.title",
		SubmitKey:  "panel.optimize.submit",
		ResultKey:  "panel.optimize.result",
		FailureKey: "panel.optimize.failure",
		Queued:     true,
	}
}

// StockPanel predicts a stock symbol.
func StockPanel() Definition {
	return Definition{
		ID:         IDStock,
		Group:      GroupDashboard,
		Endpoint:   "/api/predict_stock",
		TitleKey:   "panel.stock.title",
		SubmitKey:  "panel.stock.submit",
		ResultKey:  "panel.stock.result",
		FailureKey: "panel.stock.failure",
		Fields: []Field{
			{Name: "symbol", Kind: KindText, LabelKey: "field.symbol", PlaceholderKey: "field.symbol.placeholder", Required: true},
		},
		Encode: func(v Values) (any, error) {
			return StockRequest{Symbol: v.Get("symbol")}, nil
		},
	}
}

// WeatherPanel predicts the weather for a location.
func WeatherPanel() Definition {
	return Definition{
		ID:         IDWeather,
		Group:      GroupDashboard,
		Endpoint:   "/api/predict_weather",
		TitleKey:   "panel.weather.title",
		SubmitKey:  "panel.weather.submit",
		ResultKey:  "panel.weather.result",
		FailureKey: "panel.weather.failure",
		Fields: []Field{
			{Name: "location", Kind: KindText, LabelKey: "field.location", PlaceholderKey: "field.location.placeholder", Required: true},
		},
		Encode: func(v Values) (any, error) {
			return WeatherRequest{Location: v.Get("location")}, nil
		},
	}
}

// DefaultCatalog returns every panel of the front end.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(
		LotteryPanel(),
		ChartPanel(),
		DivinationPanel(),
		NamingPanel(),
		OptimizePanel(),
		StockPanel(),
		WeatherPanel(),
	)
	if err != nil {
		panic(err)
	}
	return c
}
