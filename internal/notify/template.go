package notify

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"net/url"
	texttemplate "text/template"

	"github.com/shopspring/decimal"

	"github.com/price-alerts/internal/config"
	"github.com/price-alerts/internal/models"
	"github.com/price-alerts/internal/pricing"
)

const subjectFormat = "Price drop: %s is now %s"

const textBody = `Hi {{.UserName}},

Good news! {{.ProductName}} has dropped to {{.CurrentPrice}}, at or below your target of {{.TargetPrice}}.

View it here: {{.ProductURL}}

You are receiving this because you set a price alert. This alert has now been closed.
`

const htmlBody = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
</head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
        <h2 style="color: #2e7d32;">Price drop alert</h2>
        <p>Hi {{.UserName}},</p>
        <p><strong>{{.ProductName}}</strong> has dropped to a price you asked us to watch for.</p>
        <div style="text-align: center; margin: 20px 0;">
            <img src="{{.ImageURL}}" alt="{{.ProductName}}" style="max-width: 100%; border-radius: 5px;">
        </div>
        <table style="width: 100%; border-collapse: collapse; margin: 20px 0;">
            <tr>
                <td style="padding: 8px;">Your target price</td>
                <td style="padding: 8px; text-align: right;">{{.TargetPrice}}</td>
            </tr>
            <tr style="background-color: #f4f4f4;">
                <td style="padding: 8px;"><strong>Current price</strong></td>
                <td style="padding: 8px; text-align: right; color: #2e7d32;"><strong>{{.CurrentPrice}}</strong></td>
            </tr>
        </table>
        <p style="text-align: center;">
            <a href="{{.ProductURL}}" style="background-color: #2e7d32; color: #fff; padding: 12px 24px; border-radius: 5px; text-decoration: none;">View product</a>
        </p>
        <hr style="border: none; border-top: 1px solid #eee; margin: 30px 0;">
        <p style="color: #999; font-size: 12px;">
            You are receiving this because you set a price alert. This alert has now been closed.
        </p>
    </div>
</body>
</html>
`

var (
	textTemplate = texttemplate.Must(texttemplate.New("text").Parse(textBody))
	htmlTemplate = htmltemplate.Must(htmltemplate.New("html").Parse(htmlBody))
)

// emailData is what both templates see.
type emailData struct {
	UserName     string
	ProductName  string
	TargetPrice  string
	CurrentPrice string
	ImageURL     string
	ProductURL   string
}

// Renderer turns a match into a Message.
type Renderer struct {
	currency     pricing.Currency
	siteURL      string
	imageBaseURL string
	defaultImage string
}

// NewRenderer creates a renderer from the alert settings
func NewRenderer(cfg *config.AlertsConfig) *Renderer {
	return &Renderer{
		currency:     pricing.Currency{Symbol: cfg.CurrencySymbol},
		siteURL:      cfg.SiteURL,
		imageBaseURL: cfg.ImageBaseURL,
		defaultImage: cfg.DefaultImage,
	}
}

// ImageURL is where the product's image is served from.
func (r *Renderer) ImageURL(product *models.Product) string {
	return r.imageBaseURL + "/" + url.PathEscape(product.ImageName(r.defaultImage))
}

// ProductURL is the product page link.
func (r *Renderer) ProductURL(product *models.Product) string {
	return fmt.Sprintf("%s/product/%d", r.siteURL, product.ID)
}

// Render builds the email for one matched alert.
func (r *Renderer) Render(user *models.User, product *models.Product, alert *models.PriceAlert, price decimal.Decimal) (*Message, error) {
	data := emailData{
		UserName:     user.Name,
		ProductName:  product.Name,
		TargetPrice:  r.currency.Format(alert.TargetPrice),
		CurrentPrice: r.currency.Format(price),
		ImageURL:     r.ImageURL(product),
		ProductURL:   r.ProductURL(product),
	}

	var text, html bytes.Buffer
	if err := textTemplate.Execute(&text, data); err != nil {
		return nil, fmt.Errorf("failed to render text body: %w", err)
	}
	if err := htmlTemplate.Execute(&html, data); err != nil {
		return nil, fmt.Errorf("failed to render html body: %w", err)
	}

	return &Message{
		To:      user.Email,
		ToName:  user.Name,
		Subject: fmt.Sprintf(subjectFormat, product.Name, data.CurrentPrice),
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}
