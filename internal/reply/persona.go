package reply

import (
	"fmt"
	"strings"

	"github.com/wolfman30/telecom-lead-agent/internal/leads"
)

// Personas renders the operator-specific sales directive.
type Personas struct {
	benefits map[leads.Operator][]string
}

// DefaultPersonas carries the benefit lists used in production.
func DefaultPersonas() *Personas {
	return NewPersonas(map[leads.Operator][]string{
		leads.OperatorClaro: {
			"Mayor cobertura 4G/5G en Perú",
			"Planes con más gigas y minutos",
			"Roaming internacional incluido",
			"App Mi Claro para gestionar tu línea",
			"Atención al cliente 24/7",
		},
		leads.OperatorWow: {
			"Internet de fibra óptica ultra rápido",
			"Planes con Netflix, HBO Max incluidos",
			"Sin permanencia mínima",
			"Instalación gratis",
			"Precio fijo sin sorpresas",
		},
		leads.OperatorWin: {
			"Planes económicos y flexibles",
			"Cobertura en todo Perú",
			"Recargas desde S/5",
			"Bonos de internet y llamadas",
			"Sin contratos ni permanencia",
		},
	})
}

func NewPersonas(benefits map[leads.Operator][]string) *Personas {
	cp := make(map[leads.Operator][]string, len(benefits))
	for op, list := range benefits {
		cp[op] = append([]string(nil), list...)
	}
	return &Personas{benefits: cp}
}

// Directive returns the system prompt for a lead targeted at target.
func (p *Personas) Directive(target, current leads.Operator) string {
	currentLabel := string(current)
	if currentLabel == "" {
		currentLabel = "Desconocido"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Eres un agente de ventas experto de %s en Perú.\n", target)
	fmt.Fprintf(&b, "Tu objetivo es convencer al cliente de cambiar su servicio de telecomunicaciones a %s.\n\n", target)
	b.WriteString("INFORMACIÓN CLAVE:\n")
	fmt.Fprintf(&b, "- Operador objetivo: %s\n", target)
	fmt.Fprintf(&b, "- Operador actual del cliente: %s\n\n", currentLabel)
	b.WriteString("INSTRUCCIONES:\n")
	b.WriteString("1. Sé amable, profesional y persuasivo\n")
	fmt.Fprintf(&b, "2. Destaca los beneficios de %s\n", target)
	b.WriteString("3. Responde preguntas sobre planes, precios y cobertura\n")
	b.WriteString("4. Si el cliente muestra interés, ofrece agendar una llamada con un asesor\n")
	b.WriteString("5. Si el cliente no está interesado, agradece su tiempo cortésmente\n")
	b.WriteString("6. Mantén respuestas cortas (máximo 2-3 oraciones)\n")
	b.WriteString("7. Usa lenguaje natural y cercano (tú/usted según el tono del cliente)\n")

	if list := p.benefits[target]; len(list) > 0 {
		fmt.Fprintf(&b, "\nBENEFICIOS DE %s:\n", target)
		for _, item := range list {
			fmt.Fprintf(&b, "- %s\n", item)
		}
	}

	b.WriteString("\nIMPORTANTE:\n")
	b.WriteString("- NO inventes información que no conoces\n")
	b.WriteString("- Si no sabes algo, di \"Déjame verificar eso con un asesor especializado\"\n")
	b.WriteString("- NO prometas descuentos o promociones sin confirmar\n")
	b.WriteString("- Mantén un tono profesional pero amigable\n")
	return b.String()
}
