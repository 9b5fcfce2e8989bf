package key

import (
	"encoding"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

func textMarshalBson(val encoding.TextMarshaler) (bsontype.Type, []byte, error) {
	textBytes, err := val.MarshalText()
	if err != nil {
		return 0, nil, err
	}

	return bson.MarshalValue(string(textBytes))
}

func textUnmarshalBson(val encoding.TextUnmarshaler, b bsontype.Type, bytes []byte) error {
	var s = new(string)

	if err := bson.UnmarshalValue(b, bytes, s); err != nil {
		return err
	}

	return val.UnmarshalText([]byte(*s))
}

func (p PeerPublic) MarshalBSONValue() (bsontype.Type, []byte, error) {
	return textMarshalBson(p)
}

func (p *PeerPublic) UnmarshalBSONValue(b bsontype.Type, bytes []byte) error {
	return textUnmarshalBson(p, b, bytes)
}
