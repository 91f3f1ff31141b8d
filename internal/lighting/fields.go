package lighting

// Field names of the descriptive light point attributes, in storage order.
// They double as JSON keys and PostgreSQL column names.
const (
	FieldMarker            = "marker"
	FieldNumeroPalo        = "numero_palo"
	FieldComposizionePunto = "composizione_punto"
	FieldIndirizzo         = "indirizzo"
	FieldLotto             = "lotto"
	FieldQuadro            = "quadro"
	FieldProprieta         = "proprieta"
	FieldTipoApparecchio   = "tipo_apparecchio"
	FieldModello           = "modello"
	FieldNumeroApparecchi  = "numero_apparecchi"
	FieldLampadaPotenza    = "lampada_potenza"
	FieldTipoSostegno      = "tipo_sostegno"
	FieldTipoLinea         = "tipo_linea"
	FieldPromiscuita       = "promiscuita"
	FieldNote              = "note"
	FieldGaranzia          = "garanzia"
	FieldLat               = "lat"
	FieldLng               = "lng"
	FieldPOD               = "pod"
	FieldNumeroContatore   = "numero_contatore"
	FieldAlimentazione     = "alimentazione"
	FieldPotenzaContratto  = "potenza_contratto"
	FieldPotenza           = "potenza"
	FieldPuntiLuce         = "punti_luce"
	FieldTipo              = "tipo"
)

// Fields is the allow-list of canonical attribute names.
var Fields = []string{
	FieldMarker, FieldNumeroPalo, FieldComposizionePunto, FieldIndirizzo, FieldLotto,
	FieldQuadro, FieldProprieta, FieldTipoApparecchio, FieldModello, FieldNumeroApparecchi,
	FieldLampadaPotenza, FieldTipoSostegno, FieldTipoLinea, FieldPromiscuita, FieldNote,
	FieldGaranzia, FieldLat, FieldLng, FieldPOD, FieldNumeroContatore,
	FieldAlimentazione, FieldPotenzaContratto, FieldPotenza, FieldPuntiLuce, FieldTipo,
}

var fieldSet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(Fields))
	for _, f := range Fields {
		m[f] = struct{}{}
	}
	return m
}()

// IsField reports whether name is a canonical attribute.
func IsField(name string) bool {
	_, ok := fieldSet[name]
	return ok
}

// FieldPtr returns the address of the named attribute, or nil.
func (lp *LightPoint) FieldPtr(name string) *string {
	switch name {
	case FieldMarker:
		return &lp.Marker
	case FieldNumeroPalo:
		return &lp.NumeroPalo
	case FieldComposizionePunto:
		return &lp.ComposizionePunto
	case FieldIndirizzo:
		return &lp.Indirizzo
	case FieldLotto:
		return &lp.Lotto
	case FieldQuadro:
		return &lp.Quadro
	case FieldProprieta:
		return &lp.Proprieta
	case FieldTipoApparecchio:
		return &lp.TipoApparecchio
	case FieldModello:
		return &lp.Modello
	case FieldNumeroApparecchi:
		return &lp.NumeroApparecchi
	case FieldLampadaPotenza:
		return &lp.LampadaPotenza
	case FieldTipoSostegno:
		return &lp.TipoSostegno
	case FieldTipoLinea:
		return &lp.TipoLinea
	case FieldPromiscuita:
		return &lp.Promiscuita
	case FieldNote:
		return &lp.Note
	case FieldGaranzia:
		return &lp.Garanzia
	case FieldLat:
		return &lp.Lat
	case FieldLng:
		return &lp.Lng
	case FieldPOD:
		return &lp.POD
	case FieldNumeroContatore:
		return &lp.NumeroContatore
	case FieldAlimentazione:
		return &lp.Alimentazione
	case FieldPotenzaContratto:
		return &lp.PotenzaContratto
	case FieldPotenza:
		return &lp.Potenza
	case FieldPuntiLuce:
		return &lp.PuntiLuce
	case FieldTipo:
		return &lp.Tipo
	}
	return nil
}

// Get returns the attribute named name, or "" for unknown names.
func (lp LightPoint) Get(name string) string {
	if p := lp.FieldPtr(name); p != nil {
		return *p
	}
	return ""
}

// Set overwrites one attribute. Unknown names are ignored and reported false.
func (lp *LightPoint) Set(name, value string) bool {
	p := lp.FieldPtr(name)
	if p == nil {
		return false
	}
	*p = value
	return true
}

// Apply overwrites only the attributes present in fields.
func (lp *LightPoint) Apply(fields map[string]string) {
	for k, v := range fields {
		lp.Set(k, v)
	}
}

// Attributes returns every canonical attribute keyed by name.
func (lp LightPoint) Attributes() map[string]string {
	out := make(map[string]string, len(Fields))
	for _, f := range Fields {
		out[f] = lp.Get(f)
	}
	return out
}

// Clone deep-copies the reference collections.
func (lp LightPoint) Clone() LightPoint {
	lp.OpenReportIDs = cloneStrings(lp.OpenReportIDs)
	lp.ResolvedReportIDs = cloneStrings(lp.ResolvedReportIDs)
	lp.OperationIDs = cloneStrings(lp.OperationIDs)
	return lp
}

// Clone deep-copies the reference collections.
func (t Town) Clone() Town {
	t.LightPointIDs = cloneStrings(t.LightPointIDs)
	t.MaintainerOrgIDs = cloneStrings(t.MaintainerOrgIDs)
	if t.Coordinates != nil {
		c := *t.Coordinates
		t.Coordinates = &c
	}
	return t
}

// Clone deep-copies the town list.
func (u User) Clone() User {
	u.TownIDs = cloneStrings(u.TownIDs)
	if u.ResetExpires != nil {
		v := *u.ResetExpires
		u.ResetExpires = &v
	}
	return u
}

// Clone deep-copies members, contracts and nested structs.
func (o Organization) Clone() Organization {
	o.MemberIDs = cloneStrings(o.MemberIDs)
	if o.Contracts != nil {
		o.Contracts = append([]Contract(nil), o.Contracts...)
	}
	if o.Address != nil {
		a := *o.Address
		o.Address = &a
	}
	if o.Location != nil {
		l := *o.Location
		o.Location = &l
	}
	return o
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}

// Without returns ids minus every occurrence of drop, preserving order.
func Without(ids []string, drop ...string) []string {
	if len(drop) == 0 {
		return ids
	}
	skip := make(map[string]struct{}, len(drop))
	for _, d := range drop {
		skip[d] = struct{}{}
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := skip[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

// Contains reports whether ids holds id.
func Contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// AppendUnique appends id unless already present.
func AppendUnique(ids []string, id string) []string {
	if Contains(ids, id) {
		return ids
	}
	return append(ids, id)
}
