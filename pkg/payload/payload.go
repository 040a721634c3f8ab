// Package payload holds the canned bodies served by the tarpit.
package payload

// minimalPDF is a one-page document: catalog, page tree, page, content
// stream, xref table and trailer. It must stay byte-identical across releases
// since clients under test compare downloads against it.
var minimalPDF = []byte("%PDF-1.1\n" +
	"1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n" +
	"2 0 obj\n<< /Type /Pages /Kids [3 0 R] /Count 1 >>\nendobj\n" +
	"3 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] " +
	"/Resources << /Font << /F1 << /Type /Font /Subtype /Type1 /BaseFont /Helvetica >> >> >> " +
	"/Contents 4 0 R >>\nendobj\n" +
	"4 0 obj\n<< /Length 21 >>\nstream\n" +
	"BT /F1 24 Tf 100 700 Td (Test PDF Content) Tj ET\n" +
	"endstream\nendobj\n" +
	"xref\n0 5\n0000000000 65535 f \n0000000009 00000 n \n0000000058 00000 n \n" +
	"0000000115 00000 n \n0000000300 00000 n \n" +
	"trailer\n<< /Size 5 /Root 1 0 R >>\n" +
	"startxref\n370\n%%EOF\n")

// JSON bodies keep the ", " and ": " separators clients have been matching on.
var (
	missingFlagJSON = []byte(`{"msg": "No ext1 field here", "other": 123}`)
	blockedJSON     = []byte(`{"ext1": true, "msg": "You shall not pass"}`)
)

// PDF returns a copy of the PDF document.
func PDF() []byte {
	return clone(minimalPDF)
}

// PDFLen is the size in bytes of the document returned by PDF.
func PDFLen() int {
	return len(minimalPDF)
}

// MissingFlagJSON is a 434 body without the ext1 field.
func MissingFlagJSON() []byte {
	return clone(missingFlagJSON)
}

// BlockedJSON is a 434 body carrying ext1=true.
func BlockedJSON() []byte {
	return clone(blockedJSON)
}

func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}
