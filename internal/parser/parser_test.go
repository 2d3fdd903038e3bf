package parser

import (
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-mailorder-bridge/internal/orders"
)

const sampleEmail = `<html><body>
<div dir="ltr">---------- Forwarded message ---------<br>From: Platforma &lt;comenzi@example.ro&gt;<br>Date: sâm., 1 nov. 2025 la 18:05<br>Subject: Comanda noua<br></div>
<table>
  <tr><td>Comandă #A-10293</td></tr>
  <tr><td>
    <table>
      <tr><td>Pizza Quattro Formaggi</td><td>2 x</td><td>21.25 RON</td></tr>
      <tr><td>Cartofi prăjiți</td><td>1 buc</td><td>10.00 RON</td></tr>
      <tr><td>Desert</td><td>-</td><td>gratuit</td></tr>
      <tr><td colspan="3">Multumim!</td></tr>
    </table>
  </td></tr>
  <tr><td>Subtotal: 52.50 RON Livrare: 5.00 TOTAL: 57.50 RON</td></tr>
</table>
<table>
  <tr><td style="font-family:'Roboto Condensed',sans-serif">Adresa de livrare:</td></tr>
  <tr><td style="font-family:'Roboto Condensed',sans-serif">Ștefan Mureșan</td></tr>
  <tr><td style="font-family:'Roboto Condensed',sans-serif">0740 123 456</td></tr>
  <tr><td style="font-family:'Roboto Condensed',sans-serif">Str.  Trandafirilor   nr. 12,
      Târgu Mureș</td></tr>
  <tr><td>Mesaj:</td></tr>
  <tr><td>Fără ceapă, vă rog</td></tr>
</table>
<table>
  <tr><td>Plata:</td></tr>
  <tr><td style="font-weight:700">Card la livrare (POS)</td></tr>
</table>
</body></html>`

var fixedNow = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func newTestParser() *Parser {
	l := logrus.New()
	l.SetOutput(io.Discard)
	p := New(logrus.NewEntry(l))
	p.nowFunc = func() time.Time { return fixedNow }
	return p
}

func TestParseHTML_FullEmail(t *testing.T) {
	o, err := newTestParser().ParseHTML(sampleEmail)
	require.NoError(t, err)

	assert.Equal(t, "A-10293", o.InternalOrderID)
	assert.Equal(t, "RON", o.CurrencySymbol)
	assert.Equal(t, "delivery", o.OrderType)
	assert.Equal(t, orders.StatusProcessing, o.Status)
	assert.Equal(t, "2025-11-01 18:05:00", o.OrderTimestamp)

	require.NotNil(t, o.CustomerName)
	assert.Equal(t, "Stefan Muresan", *o.CustomerName)
	require.NotNil(t, o.CustomerPhone)
	assert.Equal(t, "0740 123 456", *o.CustomerPhone)
	require.NotNil(t, o.DeliveryAddress)
	assert.Equal(t, "Str. Trandafirilor nr. 12, Targu Mures", *o.DeliveryAddress)
	assert.Equal(t, "Fara ceapa, va rog", o.Notes)

	assert.Equal(t, orders.PaymentCard, o.PaymentMethod)
	require.NotNil(t, o.OrderValue)
	assert.Equal(t, "57.50", *o.OrderValue)

	require.Len(t, o.LineItems, 3)
	assert.Equal(t, orders.NewProduct("A-10293", "Pizza Quattro Formaggi", 2, "21.25"), o.LineItems[0])
	assert.Equal(t, orders.NewProduct("A-10293", "Cartofi prajiti", 1, "10.00"), o.LineItems[1])
	assert.Equal(t, orders.NewProduct("A-10293", "Desert", 0, "0.00"), o.LineItems[2])
}

func TestParseHTML_OnlyOrderID(t *testing.T) {
	o, err := newTestParser().ParseHTML(`<table><tr><td>Comanda #77</td></tr></table>`)
	require.NoError(t, err)

	want := orders.NewOrder("77")
	want.OrderTimestamp = "2026-01-02 03:04:05"
	assert.Equal(t, want, o)
}

func TestParseHTML_OrderIDStopsAtNextHash(t *testing.T) {
	o, err := newTestParser().ParseHTML(`<table><tr><td>Comanda #123 #x</td></tr></table>`)
	require.NoError(t, err)
	assert.Equal(t, "123", o.InternalOrderID)
}

func TestParseHTML_MissingOrderID(t *testing.T) {
	p := newTestParser()
	for _, raw := range []string{
		"",
		"<p>hello</p>",
		`<table><tr><td>Comanda 77</td></tr></table>`,
		`<table><tr><td>Comanda #   </td></tr></table>`,
	} {
		_, err := p.ParseHTML(raw)
		assert.ErrorIs(t, err, ErrParse, raw)
	}
}

func TestParseHTML_UnparseableDateFallsBackToNow(t *testing.T) {
	raw := `<div>Date: cândva, curând</div><table><tr><td>Order #X1</td></tr></table>`
	o, err := newTestParser().ParseHTML(raw)
	require.NoError(t, err)
	assert.Equal(t, "X1", o.InternalOrderID)
	assert.Equal(t, "2026-01-02 03:04:05", o.OrderTimestamp)
}

func TestParseHTML_DateWithoutForwardedBlock(t *testing.T) {
	raw := `<p>Trimis</p><span>Date: 3 mai 2025 la 09:30</span><table><tr><td>Comanda #M5</td></tr></table>`
	o, err := newTestParser().ParseHTML(raw)
	require.NoError(t, err)
	assert.Equal(t, "2025-05-03 09:30:00", o.OrderTimestamp)
}

func TestParseHTML_IncompleteCustomerBlock(t *testing.T) {
	raw := `<table><tr><td>Comanda #C3</td></tr></table>
<table>
  <tr><td style="font-family: Roboto Condensed">Adresa de livrare:</td></tr>
  <tr><td style="font-family: Roboto Condensed">Ana</td></tr>
  <tr><td>Mesaj:</td></tr>
  <tr><td>  Sună la interfon  </td></tr>
</table>`
	o, err := newTestParser().ParseHTML(raw)
	require.NoError(t, err)
	assert.Nil(t, o.CustomerName)
	assert.Nil(t, o.CustomerPhone)
	assert.Nil(t, o.DeliveryAddress)
	assert.Equal(t, "Suna la interfon", o.Notes)
}

func TestOrderValue_LastTokenWins(t *testing.T) {
	raw := `<table><tr><td>Comanda #T1</td></tr><tr><td>Subtotal: 45.00 TOTAL: 52.50</td></tr></table>`
	o, err := newTestParser().ParseHTML(raw)
	require.NoError(t, err)
	require.NotNil(t, o.OrderValue)
	assert.Equal(t, "52.50", *o.OrderValue)
}

func TestOrderValue_InnermostCell(t *testing.T) {
	raw := `<table><tr><td>Comanda #T2</td></tr><tr><td>
  <table><tr><td>Produse 12.00</td></tr><tr><td><b>Total:</b> <span>33.10 RON</span></td></tr></table>
</td></tr><tr><td>Cod promo 99.99</td></tr></table>`
	o, err := newTestParser().ParseHTML(raw)
	require.NoError(t, err)
	require.NotNil(t, o.OrderValue)
	assert.Equal(t, "33.10", *o.OrderValue)
}

func TestClassifyPayment(t *testing.T) {
	cases := map[string]orders.PaymentMethod{
		"Numerar la livrare": orders.PaymentCash,
		"CASH":               orders.PaymentCash,
		"Card la livrare":    orders.PaymentCard,
		"plata cu POS":       orders.PaymentCard,
		"Plătit online":      orders.PaymentOnline,
		"tichete de masa":    orders.PaymentCash,
		"":                   orders.PaymentCash,
	}
	for in, want := range cases {
		assert.Equal(t, want, classifyPayment(in), in)
	}
}

func TestParse_Envelope(t *testing.T) {
	first := `{"internal_order_id":"J1","zeta":true,"status":"processing","line_items":[{"b":1,"a":2}]}`
	raw := `{"orders":[{"order":` + first + `,"meta":1},{"order":{"internal_order_id":"J2"}}],"message":"ok","total":2}`

	doc, err := newTestParser().Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "J1", doc.ID())
	assert.Equal(t, first, string(doc.Raw()))
}

func TestParse_EnvelopeWithoutID(t *testing.T) {
	_, err := newTestParser().Parse(`{"orders":[{"order":{"status":"processing"}}]}`)
	assert.ErrorIs(t, err, ErrParse)
}

func TestParse_ShapeMismatchFallsBackToHTML(t *testing.T) {
	p := newTestParser()
	for _, raw := range []string{
		`{"orders":[]}`,
		`{"orders":[{"comanda":{}}]}`,
		`{"orders":"nope"}`,
		`{"orders":[{"order":"nope"}]}`,
		`{broken`,
	} {
		_, err := p.Parse(raw)
		assert.ErrorIs(t, err, ErrParse, raw)
	}
}

func TestParse_HTMLProducesCanonicalDocument(t *testing.T) {
	doc, err := newTestParser().Parse(sampleEmail)
	require.NoError(t, err)
	assert.Equal(t, "A-10293", doc.ID())
	assert.Equal(t, orders.StatusProcessing, doc.Status())

	var o orders.Order
	require.NoError(t, doc.Decode(&o))
	assert.Equal(t, "57.50", *o.OrderValue)
}
