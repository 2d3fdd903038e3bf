package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/html"

	"github.com/imrishuroy/go-mailorder-bridge/internal/orders"
)

// Labels printed by the ordering platform in its email template.
const (
	labelDelivery = "Adresa de livrare:"
	labelMessage  = "Mesaj:"
	labelPayment  = "Plata:"
	labelTotal    = "TOTAL:"
)

var (
	orderIDRe      = regexp.MustCompile(`(?:Comanda|Order) #`)
	forwardedRe    = regexp.MustCompile(`(?i)Forwarded message|Date:`)
	dateLineRe     = regexp.MustCompile(`(?i)Date:\s*([^\n]+)`)
	customerFontRe = regexp.MustCompile(`(?i)font-family.*Roboto Condensed`)
	boldRe         = regexp.MustCompile(`(?i)font-weight:\s*(?:700|bold)`)
)

// ParseHTML extracts an order from the legacy email markup. Only a missing
// order id is fatal; every other absent field keeps its default.
func (p *Parser) ParseHTML(raw string) (*orders.Order, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	idCell := doc.Find("td").FilterFunction(func(_ int, s *goquery.Selection) bool {
		text, ok := ownString(s)
		return ok && orderIDRe.MatchString(StripDiacritics(text))
	}).First()
	if idCell.Length() == 0 {
		p.log.Error("order id not found in html")
		return nil, fmt.Errorf("%w: order id not found", ErrParse)
	}
	parts := strings.Split(idCell.Text(), "#")
	id := ""
	if len(parts) > 1 {
		id = strings.TrimSpace(parts[1])
	}
	if id == "" {
		p.log.Error("order id is empty")
		return nil, fmt.Errorf("%w: order id is empty", ErrParse)
	}

	order := orders.NewOrder(id)
	order.OrderTimestamp = p.orderTimestamp(doc)
	p.customerBlock(doc, order)
	order.PaymentMethod = paymentMethod(doc)
	if v, ok := orderValue(doc); ok {
		order.OrderValue = &v
	}
	order.LineItems = lineItems(idCell, id)
	return order, nil
}

// ownString mirrors the "single string child" notion of a cell: it is
// defined only when the element has exactly one child, recursively.
func ownString(s *goquery.Selection) (string, bool) {
	if s.Length() == 0 {
		return "", false
	}
	n := s.Nodes[0]
	for {
		c := n.FirstChild
		if c == nil || c.NextSibling != nil {
			return "", false
		}
		switch c.Type {
		case html.TextNode:
			return c.Data, true
		case html.ElementNode:
			n = c
		default:
			return "", false
		}
	}
}

// labelCell finds the first td inside scope whose text is exactly label.
func labelCell(scope *goquery.Selection, label string) *goquery.Selection {
	return scope.Find("td").FilterFunction(func(_ int, s *goquery.Selection) bool {
		text, ok := ownString(s)
		return ok && strings.TrimSpace(text) == label
	}).First()
}

func textNodes(n *html.Node, visit func(*html.Node) bool) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			if !visit(c) {
				return false
			}
			continue
		}
		if !textNodes(c, visit) {
			return false
		}
	}
	return true
}

// orderTimestamp reads the "Date:" line of the forwarded message header.
// The line next to the forwarded marker wins; otherwise any "Date:" line in
// the document is used; otherwise the current time.
func (p *Parser) orderTimestamp(doc *goquery.Document) string {
	root := doc.Selection.Nodes[0]

	var marker *html.Node
	textNodes(root, func(n *html.Node) bool {
		if forwardedRe.MatchString(n.Data) {
			marker = n
			return false
		}
		return true
	})

	var dateText string
	if marker != nil && marker.Parent != nil {
		textNodes(marker.Parent, func(n *html.Node) bool {
			if !strings.Contains(n.Data, "Date:") {
				return true
			}
			if m := dateLineRe.FindStringSubmatch(n.Data); m != nil {
				dateText = strings.TrimSpace(m[1])
				return false
			}
			return true
		})
	}
	if dateText == "" {
		if m := dateLineRe.FindStringSubmatch(doc.Text()); m != nil {
			dateText = strings.TrimSpace(m[1])
		}
	}

	now := p.nowFunc().Format(orders.TimestampLayout)
	if dateText == "" {
		return now
	}
	ts, ok := ParseLocalizedDate(dateText)
	if !ok {
		p.log.WithField("date", dateText).Warn("could not parse order date, using current time")
		return now
	}
	return ts
}

// customerBlock fills name, phone, address and notes from the table that
// holds the delivery address label.
func (p *Parser) customerBlock(doc *goquery.Document, order *orders.Order) {
	header := labelCell(doc.Selection, labelDelivery)
	if header.Length() == 0 {
		p.log.WithField("order_id", order.InternalOrderID).Warn("delivery block not found")
		return
	}
	table := header.Closest("table")

	var cells []string
	table.Find("td").Each(func(_ int, s *goquery.Selection) {
		style, _ := s.Attr("style")
		if !customerFontRe.MatchString(style) {
			return
		}
		text := strings.TrimSpace(s.Text())
		if text == "" || strings.HasPrefix(text, "Adresa") {
			return
		}
		cells = append(cells, text)
	})
	if len(cells) >= 3 {
		name := StripDiacritics(cells[0])
		phone := cells[1]
		address := StripDiacritics(collapseSpace(cells[2]))
		order.CustomerName = &name
		order.CustomerPhone = &phone
		order.DeliveryAddress = &address
	} else {
		p.log.WithFields(logrus.Fields{
			"order_id": order.InternalOrderID,
			"cells":    len(cells),
		}).Warn("customer block incomplete")
	}

	msg := labelCell(table, labelMessage)
	if msg.Length() == 0 {
		return
	}
	row := msg.Closest("tr").NextAllFiltered("tr").First()
	if cell := row.Find("td").First(); cell.Length() > 0 {
		order.Notes = StripDiacritics(strings.TrimSpace(cell.Text()))
	}
}

// paymentMethod classifies the bold cell of the payment table.
func paymentMethod(doc *goquery.Document) orders.PaymentMethod {
	header := labelCell(doc.Selection, labelPayment)
	if header.Length() == 0 {
		return orders.PaymentCash
	}
	cell := header.Closest("table").Find("td").FilterFunction(func(_ int, s *goquery.Selection) bool {
		style, _ := s.Attr("style")
		return boldRe.MatchString(style)
	}).First()
	return classifyPayment(cell.Text())
}

func classifyPayment(text string) orders.PaymentMethod {
	t := strings.ToLower(strings.TrimSpace(text))
	switch {
	case strings.Contains(t, "numerar"), strings.Contains(t, "cash"):
		return orders.PaymentCash
	case strings.Contains(t, "pos"), strings.Contains(t, "card"):
		return orders.PaymentCard
	case strings.Contains(t, "online"):
		return orders.PaymentOnline
	default:
		return orders.PaymentCash
	}
}

// orderValue takes the last amount of the total cell. A cell whose single
// string holds the label wins; otherwise the innermost cell whose text holds
// it, so wrapper cells around the whole email are skipped.
func orderValue(doc *goquery.Document) (string, bool) {
	hasTotal := func(s string) bool { return strings.Contains(strings.ToUpper(s), labelTotal) }

	cells := doc.Find("td")
	cell := cells.FilterFunction(func(_ int, s *goquery.Selection) bool {
		text, ok := ownString(s)
		return ok && hasTotal(text)
	}).First()
	if cell.Length() == 0 {
		cell = cells.FilterFunction(func(_ int, s *goquery.Selection) bool {
			if !hasTotal(s.Text()) {
				return false
			}
			inner := s.Find("td").FilterFunction(func(_ int, c *goquery.Selection) bool {
				return hasTotal(c.Text())
			})
			return inner.Length() == 0
		}).First()
	}
	if cell.Length() == 0 {
		return "", false
	}
	return lastMoney(cell.Text())
}

// lineItems reads the table nested in the order id table. Every row with
// exactly three cells is a product: name, quantity, price.
func lineItems(idCell *goquery.Selection, orderID string) []orders.Product {
	items := []orders.Product{}
	table := idCell.Closest("table").Find("table").First()
	if table.Length() == 0 {
		return items
	}
	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cols := row.Find("td")
		if cols.Length() != 3 {
			return
		}
		name := StripDiacritics(strings.TrimSpace(cols.Eq(0).Text()))
		qty := firstInt(strings.TrimSpace(cols.Eq(1).Text()))
		price, ok := firstMoney(strings.TrimSpace(cols.Eq(2).Text()))
		if !ok {
			price = orders.DefaultUnitPrice
		}
		items = append(items, orders.NewProduct(orderID, name, qty, price))
	})
	return items
}
