package render

import (
	"bytes"
	"fmt"
	"image/color"
	"sync"
	"time"

	"github.com/fogleman/gg"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gomedium"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"

	"github.com/Freeeeeet/clinic_scheduler/internal/model"
)

// FontStyle selects one of the bundled Go fonts.
type FontStyle string

const (
	FontStyleDefault FontStyle = ""
	FontStyleMedium  FontStyle = "medium"
	FontStyleBold    FontStyle = "bold"
)

// Размеры и отступы
const (
	ImageWidth       = 1400
	ImageHeight      = 900
	headerHeight     = 100
	leftLabelsWidth  = 80
	legendWidth      = 120
	dayPaddingX      = 8
	minSlotHeight    = 8.0
	slotBorderRadius = 6.0
	shadowOffset     = 3.0
	daysInWeek       = 7
	hourPaddingTop   = 1
	hourPaddingBot   = 1
	defaultMinHour   = 8
	defaultMaxHour   = 18
)

const (
	titleFontSize      = 25.0
	dayFontSize        = 24.0
	hourLabelFontSize  = 16.0
	slotTimeFontSize   = 14.0
	legendItemFontSize = 12.0
)

var (
	bgColor          = color.RGBA{245, 246, 248, 255}
	textColor        = color.RGBA{80, 85, 90, 220}
	hourLabelColor   = color.RGBA{110, 115, 120, 200}
	hourLineColor    = color.NRGBA{150, 150, 150, 255}
	todayBgColor     = color.NRGBA{255, 99, 71, 125}
	evenDayColor     = color.NRGBA{240, 240, 240, 255}
	oddDayColor      = color.NRGBA{220, 220, 220, 255}
	currentTimeColor = color.NRGBA{255, 80, 80, 200}

	slotFreeColor     = color.RGBA{133, 193, 85, 220}
	slotPartialColor  = color.RGBA{255, 214, 102, 230}
	slotFullColor     = color.RGBA{255, 182, 193, 255}
	slotPastColor     = color.RGBA{158, 158, 158, 200}
	slotCanceledColor = color.RGBA{200, 200, 200, 150}
	slotTextColor     = color.RGBA{20, 24, 28, 230}
	slotFullText      = color.RGBA{120, 40, 50, 255}
	slotShadowColor   = color.RGBA{0, 0, 0, 20}

	legendItemColor = color.RGBA{70, 74, 78, 220}
)

type weekBounds struct {
	start time.Time
	end   time.Time
}

type hourRange struct {
	start int
	end   int
	total int
}

var (
	fontsMu     sync.Mutex
	cachedFonts = make(map[FontStyle]*opentype.Font)
)

func fontData(style FontStyle) []byte {
	switch style {
	case FontStyleMedium:
		return gomedium.TTF
	case FontStyleBold:
		return gobold.TTF
	default:
		return goregular.TTF
	}
}

// loadFont sets a face of the given size, falling back to basicfont when parsing fails.
func loadFont(dc *gg.Context, size float64, style FontStyle) {
	fontsMu.Lock()
	parsed, ok := cachedFonts[style]
	if !ok {
		var err error
		parsed, err = opentype.Parse(fontData(style))
		if err != nil {
			parsed = nil
		}
		cachedFonts[style] = parsed
	}
	fontsMu.Unlock()

	if parsed != nil {
		face, err := opentype.NewFace(parsed, &opentype.FaceOptions{
			Size:    size,
			DPI:     72,
			Hinting: font.HintingFull,
		})
		if err == nil {
			dc.SetFontFace(face)
			return
		}
	}
	dc.SetFontFace(basicfont.Face7x13)
}

// WeekImage renders the Monday-to-Sunday week containing weekStart as a PNG.
// Slots are coloured by occupancy; slots that started before now are greyed out.
// now also drives the today highlight and the current-time line, so it should be
// expressed in the clinic location.
func WeekImage(weekStart time.Time, slots []*model.ScheduleSlot, now time.Time) ([]byte, error) {
	week := normalizeToWeekBounds(weekStart)
	today := normalizeToDay(now)
	highlightToday := !today.Before(week.start) && !today.After(week.end)

	slotsByDay := groupSlotsByDay(slots)
	hours := calculateHourRange(slots)

	dc := gg.NewContext(ImageWidth, ImageHeight)
	dc.SetColor(bgColor)
	dc.Clear()

	dayWidth := (ImageWidth - leftLabelsWidth - legendWidth) / daysInWeek
	dayHeight := ImageHeight - headerHeight
	cellHeight := float64(dayHeight) / float64(hours.total)

	drawHeader(dc, week)
	drawHourLabels(dc, hours, cellHeight)

	date := week.start
	for dayIndex := 0; dayIndex < daysInWeek; dayIndex++ {
		x := float64(leftLabelsWidth + dayIndex*dayWidth)
		y := float64(headerHeight)

		drawDayBackground(dc, x, y, dayWidth, dayHeight, dayIndex, highlightToday && sameDay(date, today))
		drawDayHeader(dc, date, x, y, dayWidth)
		drawHourLines(dc, x, y, dayWidth, hours, cellHeight)
		for _, slot := range slotsByDay[date.Format("2006-01-02")] {
			drawSlot(dc, slot, now, x, y, dayWidth, hours, cellHeight)
		}

		date = date.AddDate(0, 0, 1)
	}

	if highlightToday {
		drawCurrentTimeLine(dc, now, hours, cellHeight, dayWidth)
	}
	drawLegend(dc, dayWidth)

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("encode week image: %w", err)
	}
	return buf.Bytes(), nil
}

func normalizeToWeekBounds(date time.Time) weekBounds {
	start := normalizeToDay(date)
	start = start.AddDate(0, 0, -((int(start.Weekday()) + 6) % 7))
	return weekBounds{start: start, end: start.AddDate(0, 0, 6)}
}

func normalizeToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}

func groupSlotsByDay(slots []*model.ScheduleSlot) map[string][]*model.ScheduleSlot {
	byDay := make(map[string][]*model.ScheduleSlot)
	for _, slot := range slots {
		key := slot.Date.Format("2006-01-02")
		byDay[key] = append(byDay[key], slot)
	}
	return byDay
}

func calculateHourRange(slots []*model.ScheduleSlot) hourRange {
	minHour, maxHour := 24, 0
	for _, slot := range slots {
		startH := slot.StartTime.Hour()
		endH := slot.EndTime.Hour()
		if slot.EndTime.Minute() > 0 {
			endH++
		}
		minHour = min(minHour, startH)
		maxHour = max(maxHour, endH)
	}

	if minHour == 24 {
		minHour, maxHour = defaultMinHour, defaultMaxHour
	}

	start := max(minHour-hourPaddingTop, 0)
	end := min(maxHour+hourPaddingBot, 24)
	return hourRange{start: start, end: end, total: end - start}
}

func drawHeader(dc *gg.Context, week weekBounds) {
	title := week.start.Month().String()
	if week.end.Month() != week.start.Month() {
		title += " - " + week.end.Month().String()
	}
	title = fmt.Sprintf("%s %d", title, week.end.Year())

	loadFont(dc, titleFontSize, FontStyleBold)
	dc.SetColor(textColor)
	_, h := dc.MeasureString(title)
	dc.DrawStringAnchored(title, float64(leftLabelsWidth), float64(headerHeight)/8+h/2, 0, 0)
}

func drawHourLabels(dc *gg.Context, hours hourRange, cellHeight float64) {
	loadFont(dc, hourLabelFontSize, FontStyleMedium)
	dc.SetColor(hourLabelColor)

	for i := 0; i <= hours.total; i++ {
		y := float64(headerHeight) + float64(i)*cellHeight
		label := fmt.Sprintf("%02d:00", hours.start+i)
		dc.DrawStringAnchored(label, float64(leftLabelsWidth)-10, y, 1, 0.5)
	}
}

func drawDayBackground(dc *gg.Context, x, y float64, dayWidth, dayHeight, dayIndex int, isToday bool) {
	switch {
	case isToday:
		dc.SetColor(todayBgColor)
	case dayIndex%2 == 0:
		dc.SetColor(evenDayColor)
	default:
		dc.SetColor(oddDayColor)
	}
	dc.DrawRectangle(x, y, float64(dayWidth), float64(dayHeight))
	dc.Fill()
}

func drawDayHeader(dc *gg.Context, date time.Time, x, y float64, dayWidth int) {
	loadFont(dc, dayFontSize, FontStyleBold)
	dc.SetColor(textColor)
	dc.DrawStringAnchored(date.Format("02.01"), x+float64(dayWidth)/2, y, 0.5, -1)
	dc.DrawStringAnchored(date.Format("Mon"), x+float64(dayWidth)/2, y, 0.5, -0.2)
}

func drawHourLines(dc *gg.Context, x, y float64, dayWidth int, hours hourRange, cellHeight float64) {
	dc.SetLineWidth(0.3)
	dc.SetColor(hourLineColor)

	for i := 0; i <= hours.total; i++ {
		hy := y + float64(i)*cellHeight
		dc.DrawLine(x, hy, x+float64(dayWidth), hy)
		dc.Stroke()
	}
}

func drawSlot(dc *gg.Context, slot *model.ScheduleSlot, now time.Time, x, y float64, dayWidth int, hours hourRange, cellHeight float64) {
	startHour := float64(slot.StartTime) / 60
	endHour := float64(slot.EndTime) / 60

	slotY := y + (startHour-float64(hours.start))*cellHeight
	slotHeight := max((endHour-startHour)*cellHeight, minSlotHeight)
	slotWidth := float64(dayWidth) - float64(dayPaddingX*2)
	left := x + float64(dayPaddingX)

	fill := slotColor(slot, now)

	dc.SetColor(slotShadowColor)
	dc.DrawRoundedRectangle(left+shadowOffset, slotY+2+shadowOffset, slotWidth, slotHeight-4, slotBorderRadius)
	dc.Fill()

	dc.SetColor(fill)
	dc.DrawRoundedRectangle(left, slotY+2, slotWidth, slotHeight-4, slotBorderRadius)
	dc.Fill()

	dc.SetColor(darkenColor(fill, 0.8))
	dc.SetLineWidth(1)
	dc.DrawRoundedRectangle(left, slotY+2, slotWidth, slotHeight-4, slotBorderRadius)
	dc.Stroke()

	txt := slotTextColor
	if slot.IsFull() {
		txt = slotFullText
	}

	// Слишком низкий слот не вмещает подпись
	if slotHeight < slotTimeFontSize+6 {
		return
	}
	loadFont(dc, slotTimeFontSize, FontStyleMedium)
	dc.SetColor(txt)
	label := fmt.Sprintf("%s  %d/%d", slot.StartTime, slot.BookedCount, slot.Capacity)
	dc.DrawStringAnchored(label, left+8, slotY+slotHeight/2, 0, 0.35)
}

// slotColor: cancelled and past slots first, then by occupancy.
func slotColor(slot *model.ScheduleSlot, now time.Time) color.RGBA {
	switch {
	case slot.IsCancelled():
		return slotCanceledColor
	case slot.HasStarted(now):
		return slotPastColor
	case slot.IsFull():
		return slotFullColor
	case slot.BookedCount > 0:
		return slotPartialColor
	default:
		return slotFreeColor
	}
}

func darkenColor(c color.RGBA, factor float64) color.RGBA {
	return color.RGBA{
		R: uint8(float64(c.R) * factor),
		G: uint8(float64(c.G) * factor),
		B: uint8(float64(c.B) * factor),
		A: c.A,
	}
}

func drawCurrentTimeLine(dc *gg.Context, now time.Time, hours hourRange, cellHeight float64, dayWidth int) {
	current := float64(now.Hour()) + float64(now.Minute())/60
	if current < float64(hours.start) || current > float64(hours.end) {
		return
	}

	lineY := float64(headerHeight) + (current-float64(hours.start))*cellHeight
	dc.SetColor(currentTimeColor)
	dc.SetLineWidth(2)
	dc.DrawLine(float64(leftLabelsWidth), lineY, float64(leftLabelsWidth+daysInWeek*dayWidth), lineY)
	dc.Stroke()
}

func drawLegend(dc *gg.Context, dayWidth int) {
	items := []struct {
		label string
		clr   color.Color
	}{
		{"Free", slotFreeColor},
		{"Partly booked", slotPartialColor},
		{"Full", slotFullColor},
		{"Past", slotPastColor},
		{"Cancelled", slotCanceledColor},
	}

	const boxW, boxH = 20.0, 14.0
	lx := float64(leftLabelsWidth + daysInWeek*dayWidth + 10)
	ly := float64(ImageHeight) - 150.0

	loadFont(dc, legendItemFontSize, FontStyleDefault)
	for _, item := range items {
		dc.SetColor(item.clr)
		dc.DrawRoundedRectangle(lx, ly, boxW, boxH, 3)
		dc.Fill()

		dc.SetColor(legendItemColor)
		dc.DrawStringAnchored(item.label, lx+boxW+8, ly+boxH/2+1, 0, 0.2)
		ly += boxH + 14
	}
}
