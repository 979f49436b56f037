package mail

import (
	"bytes"
	"text/template"
	"time"
)

// Email - готовое письмо.
type Email struct {
	Subject string
	Body    string
}

// DeadlineLayout - формат дедлайна в письмах.
const DeadlineLayout = "Jan 2, 2006 15:04"

// JobDetails - поля заказа, которые попадают в письма.
type JobDetails struct {
	Title     string
	DisplayID string
	Amount    float64
	Deadline  time.Time
	Link      string
}

type paymentDetails struct {
	JobDetails
	Amount        float64
	InvoiceNumber string
	Reason        string
}

var (
	deliveredTmpl = template.Must(template.New("delivered").Parse(`Hello,

Work on your order "{{.Title}}" ({{.DisplayID}}) has been delivered and is ready for your review.

Review it here: {{.Link}}
`))

	assignedTmpl = template.Must(template.New("assigned").Funcs(template.FuncMap{
		"deadline": func(t time.Time) string { return t.Format(DeadlineLayout) },
	}).Parse(`Hello,

You have been assigned to a new order.

Title:    {{.Title}}
Order ID: {{.DisplayID}}
Deadline: {{deadline .Deadline}}
Amount:   {{printf "%.2f" .Amount}}

Open the order: {{.Link}}
`))

	paymentReceivedTmpl = template.Must(template.New("received").Parse(`Hello,

Payment for order "{{.Title}}" ({{.DisplayID}}) has been confirmed.
Your earnings of {{printf "%.2f" .Amount}} have been added to your balance.{{if .InvoiceNumber}}
Invoice: {{.InvoiceNumber}}{{end}}
`))

	paymentConfirmedTmpl = template.Must(template.New("confirmed").Parse(`Hello,

We have received your payment of {{printf "%.2f" .Amount}} for order "{{.Title}}" ({{.DisplayID}}).
The order is now completed.{{if .InvoiceNumber}}
Invoice: {{.InvoiceNumber}}{{end}}

Thank you.
`))

	paymentFailedTmpl = template.Must(template.New("failed").Parse(`Hello,

Your payment for order "{{.Title}}" ({{.DisplayID}}) could not be completed.
Reason: {{.Reason}}

Please try again: {{.Link}}
`))

	paymentRejectedTmpl = template.Must(template.New("rejected").Parse(`Hello,

Your payment for order "{{.Title}}" ({{.DisplayID}}) could not be verified.

Please retry the payment with M-Pesa or card, or enter your M-Pesa confirmation code manually: {{.Link}}
`))
)

// WorkDelivered - письмо клиенту о сдаче работы.
func WorkDelivered(job JobDetails) (Email, error) {
	return render("Work delivered: "+job.Title, deliveredTmpl, job)
}

// JobAssigned - письмо фрилансеру о назначении на заказ.
func JobAssigned(job JobDetails) (Email, error) {
	return render("You have been assigned: "+job.Title, assignedTmpl, job)
}

// PaymentReceived - письмо фрилансеру о зачислении доли.
func PaymentReceived(job JobDetails, share float64, invoiceNumber string) (Email, error) {
	return render("Payment received for "+job.Title, paymentReceivedTmpl,
		paymentDetails{JobDetails: job, Amount: share, InvoiceNumber: invoiceNumber})
}

// PaymentConfirmed - письмо клиенту о подтверждении оплаты.
func PaymentConfirmed(job JobDetails, amount float64, invoiceNumber string) (Email, error) {
	return render("Payment confirmed for "+job.Title, paymentConfirmedTmpl,
		paymentDetails{JobDetails: job, Amount: amount, InvoiceNumber: invoiceNumber})
}

// PaymentFailed - письмо клиенту о неудачной оплате через шлюз.
func PaymentFailed(job JobDetails, reason string) (Email, error) {
	return render("Payment failed for "+job.Title, paymentFailedTmpl,
		paymentDetails{JobDetails: job, Reason: reason})
}

// PaymentRejected - письмо клиенту, когда администратор не подтвердил оплату.
func PaymentRejected(job JobDetails) (Email, error) {
	return render("Payment not verified for "+job.Title, paymentRejectedTmpl, paymentDetails{JobDetails: job})
}

func render(subject string, tmpl *template.Template, data interface{}) (Email, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return Email{}, err
	}
	return Email{Subject: subject, Body: buf.String()}, nil
}
